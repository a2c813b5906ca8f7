package internaldefs

import (
	"strings"
	"testing"

	goCred "github.com/MrEthical07/goCred"
)

func TestEveryMetricHasADefinition(t *testing.T) {
	seen := make(map[goCred.MetricID]string)
	for _, d := range CounterDefs {
		if prev, ok := seen[d.ID]; ok {
			t.Fatalf("metric %d defined twice: %s and %s", d.ID, prev, d.Name)
		}
		if !strings.HasPrefix(d.Name, "gocred_") || !strings.HasSuffix(d.Name, "_total") {
			t.Fatalf("counter name %q breaks the naming scheme", d.Name)
		}
		seen[d.ID] = d.Name
	}
	for _, d := range HistogramDefs {
		seen[d.ID] = d.Name
	}
	for id := goCred.MetricID(0); id < goCred.MetricIDCount; id++ {
		if _, ok := seen[id]; !ok {
			t.Fatalf("metric %d has no exported definition", id)
		}
	}
}

func TestBucketHelpers(t *testing.T) {
	if len(HistogramBounds) != goCred.HistBucketCount-1 {
		t.Fatal("bucket bounds out of sync with HistBucketCount")
	}
	if BucketLabel(0) != "0.005" || BucketLabel(6) != "0.5" || BucketLabel(goCred.HistBucketCount-1) != "+Inf" {
		t.Fatalf("unexpected labels %q %q %q", BucketLabel(0), BucketLabel(6), BucketLabel(7))
	}

	n := NormalizeBuckets([]uint64{1, 2, 3})
	if n[2] != 3 || n[7] != 0 {
		t.Fatalf("NormalizeBuckets = %v", n)
	}
	c := CumulativeBuckets([goCred.HistBucketCount]uint64{1, 1, 1, 1, 1, 1, 1, 1})
	if c[0] != 1 || c[7] != 8 {
		t.Fatalf("CumulativeBuckets = %v", c)
	}
}
