package goCred

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goCred/jwt"
	"github.com/MrEthical07/goCred/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSessionKey = "0123456789abcdef0123456789abcdef"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.UnixMilli(time.Now().UnixMilli())}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeDirectory struct {
	mu      sync.Mutex
	creds   map[string]Credential
	lookups int
	updates int
	failAll error
	// failUpdate fails UpdateCredential only.
	failUpdate error
}

func newFakeDirectory(creds ...Credential) *fakeDirectory {
	d := &fakeDirectory{creds: map[string]Credential{}}
	for _, c := range creds {
		d.creds[c.Subject] = c
	}
	return d
}

func (d *fakeDirectory) FindBySubject(_ context.Context, subject string) (Credential, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	if d.failAll != nil {
		return Credential{}, d.failAll
	}
	c, ok := d.creds[subject]
	if !ok {
		return Credential{}, ErrSubjectNotFound
	}
	return c, nil
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	if d.failAll != nil {
		return "", d.failAll
	}
	for _, c := range d.creds {
		if strings.EqualFold(c.Email, email) {
			return c.Subject, nil
		}
	}
	return "", ErrSubjectNotFound
}

func (d *fakeDirectory) UpdateCredential(_ context.Context, subject, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates++
	if d.failUpdate != nil {
		return d.failUpdate
	}
	c, ok := d.creds[subject]
	if !ok {
		return ErrSubjectNotFound
	}
	c.PasswordHash = hash
	d.creds[subject] = c
	return nil
}

func (d *fakeDirectory) remove(subject string) {
	d.mu.Lock()
	delete(d.creds, subject)
	d.mu.Unlock()
}

func (d *fakeDirectory) hash(subject string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creds[subject].PasswordHash
}

func (d *fakeDirectory) counts() (lookups, updates int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookups, d.updates
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, msg Message) (DeliveryResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	if n.err != nil {
		return DeliveryResult{}, n.err
	}
	return DeliveryResult{Provider: "fake", MessageID: "fake-" + strconv.Itoa(len(n.sent))}, nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *fakeNotifier) last(t *testing.T) Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("expected a sent message")
	}
	return n.sent[len(n.sent)-1]
}

var (
	codePattern  = regexp.MustCompile(`code is (\d+)\.`)
	tokenPattern = regexp.MustCompile(`https?://\S+`)
)

func (n *fakeNotifier) lastCode(t *testing.T) string {
	t.Helper()
	m := codePattern.FindStringSubmatch(n.last(t).Text)
	if m == nil {
		t.Fatalf("no code in message %q", n.last(t).Text)
	}
	return m[1]
}

func (n *fakeNotifier) lastResetToken(t *testing.T) (subject, token string) {
	t.Helper()
	link := tokenPattern.FindString(n.last(t).Text)
	u, err := url.Parse(link)
	if err != nil || link == "" {
		t.Fatalf("no reset link in message %q", n.last(t).Text)
	}
	return u.Query().Get("uid"), u.Query().Get("token")
}

type testEnv struct {
	engine   *Engine
	dir      *fakeDirectory
	notifier *fakeNotifier
	clock    *testClock
	hasher   *password.Argon2
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Session.SigningMethod = jwt.MethodHS256
	cfg.Session.PrivateKey = []byte(testSessionKey)
	cfg.Reset.URL = "https://example.test/reset-password"
	cfg.Challenge.EnumerationDelayMin = 0
	cfg.Challenge.EnumerationDelayMax = 0
	return cfg
}

func newTestHasher(t *testing.T, cfg Config) *password.Argon2 {
	t.Helper()
	h, err := password.NewArgon2(cfg.passwordConfig())
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

type backend struct {
	name  string
	apply func(t *testing.T, b *Builder)
}

var backends = []backend{
	{name: "memory", apply: func(_ *testing.T, b *Builder) { b.WithMemoryBackend() }},
	{name: "redis", apply: func(t *testing.T, b *Builder) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		b.WithRedis(rdb)
	}},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, be backend)) {
	for _, be := range backends {
		be := be
		t.Run(be.name, func(t *testing.T) { fn(t, be) })
	}
}

// newTestEnv builds an engine with one subject, u1 / alice@example.test,
// whose password is "Abc12345!".
func newTestEnv(t *testing.T, be backend, mutate func(*Config, *Credential)) *testEnv {
	t.Helper()

	cfg := testConfig()
	cred := Credential{Subject: "u1", Email: "alice@example.test", Name: "Alice"}
	if mutate != nil {
		mutate(&cfg, &cred)
	}

	hasher := newTestHasher(t, cfg)
	if cred.PasswordHash == "" {
		h, err := hasher.Hash("Abc12345!")
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		cred.PasswordHash = h
		cred.Algorithm = hasher.Algorithm()
	}

	env := &testEnv{
		dir:      newFakeDirectory(cred),
		notifier: &fakeNotifier{},
		clock:    newTestClock(),
		hasher:   hasher,
	}

	b := New().
		WithConfig(cfg).
		WithDirectory(env.dir).
		WithNotifier(env.notifier).
		WithClock(env.clock.Now)
	be.apply(t, b)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}

func requireKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	if got := KindOf(err); got != want {
		t.Fatalf("expected kind %s, got %s (err=%v)", want, got, err)
	}
}

func requireIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
