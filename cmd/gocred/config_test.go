package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goCred/jwt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gocred.yaml", `
server:
  addr: ":9000"
  shutdown_timeout: 3s
log:
  env: prod
notify:
  driver: smtp
  smtp:
    host: smtp.example.test
    port: 587
engine:
  challenge:
    resend_cooldown: 30s
`)
	t.Setenv("GOCRED_SERVER_ADDR", ":9100")
	t.Setenv("GOCRED_NOTIFY_SMTP_FROM", "no-reply@example.test")

	cfg, err := loadConfig(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Addr != ":9100" {
		t.Fatalf("env should override yaml, got %q", cfg.Server.Addr)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second || cfg.Log.Env != "prod" {
		t.Fatalf("yaml values lost: %+v %+v", cfg.Server, cfg.Log)
	}
	if cfg.Notify.Driver != driverSMTP || cfg.Notify.SMTP.Host != "smtp.example.test" || cfg.Notify.SMTP.From != "no-reply@example.test" {
		t.Fatalf("unexpected notify config %+v", cfg.Notify)
	}
	if cfg.Engine.Challenge.ResendCooldown != 30*time.Second {
		t.Fatalf("engine yaml ignored: %v", cfg.Engine.Challenge.ResendCooldown)
	}
	if cfg.Notify.Product != "goCred" || cfg.Log.Level != "info" {
		t.Fatalf("defaults lost: %+v %+v", cfg.Notify, cfg.Log)
	}
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "GOCRED_NOTIFY_PRODUCT=Acme\n")
	t.Setenv("GOCRED_NOTIFY_PRODUCT", "")
	os.Unsetenv("GOCRED_NOTIFY_PRODUCT")

	cfg, err := loadConfig("", envFile)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Notify.Product != "Acme" {
		t.Fatalf("dotenv value not applied: %q", cfg.Notify.Product)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := loadConfig(filepath.Join(dir, "nope.yaml"), ""); err == nil {
		t.Fatal("missing config file should fail")
	}
	bad := writeFile(t, dir, "bad.yaml", "server: [\n")
	if _, err := loadConfig(bad, ""); err == nil {
		t.Fatal("malformed yaml should fail")
	}
	t.Setenv("GOCRED_SESSION_PRIVATE_KEY_FILE", filepath.Join(dir, "absent.pem"))
	if _, err := loadConfig("", ""); err == nil {
		t.Fatal("unreadable key file should fail")
	}
}

func TestSessionSecretSelectsHS256(t *testing.T) {
	t.Setenv("GOCRED_SESSION_SECRET", testSecret)
	cfg, err := loadConfig("", "")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Engine.Session.SigningMethod != jwt.MethodHS256 || string(cfg.Engine.Session.PrivateKey) != testSecret {
		t.Fatalf("secret not applied: %v", cfg.Engine.Session.SigningMethod)
	}
}

func TestValidateDriver(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cfg.Notify.Driver = "sms"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown driver should fail")
	}
	cfg = defaultConfig()
	cfg.Server.Addr = " "
	if err := cfg.Validate(); err == nil {
		t.Fatal("blank addr should fail")
	}
}

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--env-file", ""))
	err := root.Execute()
	return out.String(), err
}

func TestScoreCommand(t *testing.T) {
	out, err := runCommand(t, "", "score", "abc")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	var got struct {
		Score      int `json:"score"`
		Violations []struct {
			Code string `json:"code"`
		} `json:"violations"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(got.Violations) == 0 {
		t.Fatalf("weak password should list violations: %s", out)
	}
}

func TestHashPasswordCommand(t *testing.T) {
	t.Setenv("GOCRED_SESSION_SECRET", testSecret)

	out, err := runCommand(t, "Correct-Horse-1\n", "hash-password")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	if !strings.HasPrefix(out, "$argon2id$") {
		t.Fatalf("unexpected hash output %q", out)
	}

	if _, err := runCommand(t, "short\n", "hash-password"); err == nil || !strings.Contains(err.Error(), "password rejected") {
		t.Fatalf("weak password should be rejected, got %v", err)
	}
	if out, err := runCommand(t, "short\n", "hash-password", "--skip-policy"); err != nil || !strings.HasPrefix(out, "$argon2id$") {
		t.Fatalf("skip-policy should hash anyway: %q %v", out, err)
	}
	if _, err := runCommand(t, "", "hash-password"); err == nil {
		t.Fatal("empty stdin should fail")
	}
}

func TestUserCommandsRequireDSN(t *testing.T) {
	t.Setenv("GOCRED_POSTGRES_DSN", "")
	if _, err := runCommand(t, "", "migrate"); err == nil || !strings.Contains(err.Error(), "dsn") {
		t.Fatalf("migrate without dsn: %v", err)
	}
	if _, err := runCommand(t, "Correct-Horse-1\n", "user", "put", "--subject", "u1"); err == nil {
		t.Fatal("put without --email should fail")
	}
}
