package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goCred "github.com/MrEthical07/goCred"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeSource struct {
	snapshot goCred.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goCred.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                    { return f.dropped }
func (f fakeSource) DeliveryDropped() uint64                 { return 0 }

func scrape(t *testing.T, exp *Exporter) string {
	t.Helper()
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestCollectNothingWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{snapshot: goCred.MetricsSnapshot{
		Counters:   map[goCred.MetricID]uint64{},
		Histograms: map[goCred.MetricID][]uint64{},
	}})

	reg := prometheus.NewRegistry()
	reg.MustRegister(exp)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 0 {
		t.Fatalf("expected no families, got %d", len(families))
	}
}

func TestScrapeIncludesCountersAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goCred.MetricsSnapshot{
			Counters: map[goCred.MetricID]uint64{
				goCred.MetricChallengeVerifySuccess: 7,
				goCred.MetricLockoutTriggered:       2,
			},
			Histograms: map[goCred.MetricID][]uint64{
				goCred.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	})

	out := scrape(t, exp)
	for _, want := range []string{
		"gocred_challenge_verify_success_total 7",
		"gocred_lockout_triggered_total 2",
		"gocred_login_success_total 0",
		`gocred_verify_latency_seconds_bucket{le="0.005"} 1`,
		`gocred_verify_latency_seconds_bucket{le="0.5"} 28`,
		`gocred_verify_latency_seconds_bucket{le="+Inf"} 36`,
		"gocred_verify_latency_seconds_count 36",
		"gocred_audit_dropped_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("scrape missing %q:\n%s", want, out)
		}
	}
}

func TestExporterReadsLiveEngine(t *testing.T) {
	var nilEngine *goCred.Engine
	exp := NewExporter(nilEngine)
	if out := scrape(t, exp); strings.Contains(out, "gocred_") {
		t.Fatalf("nil engine should export nothing:\n%s", out)
	}
}
