package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/neomorfeo/caseflow/internal/config"
	"github.com/neomorfeo/caseflow/internal/domain"
)

const testPrograms = `
programs:
  - id: bolsa
    name: Bolsa Municipal
    family: benefit_grant
    criteria:
      - name: low_income
        mandatory: true
        predicate: {attribute: income, op: lte, value: 706}
    budget: {allocated: 150000}
    grant_amount: 600
    active: true
  - id: denuncia
    name: Denuncia Ambiental
    family: environmental_complaint
    active: true
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		HTTP:      config.HTTP{Port: 19876},
		Database:  config.Database{Path: filepath.Join(t.TempDir(), "test.db")},
		Log:       config.Log{Level: "error", Format: "text"},
		RateLimit: config.RateLimit{RPS: 100, Burst: 100},
		Queue:     config.Queue{Workers: 1},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePrograms(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "programs.yaml")
	if err := os.WriteFile(path, []byte(testPrograms), 0o600); err != nil {
		t.Fatalf("writing programs: %v", err)
	}
	return path
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.Log{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered: %s", out)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", out, err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}
}

// TestSmoke wires the full stack like run() and verifies it responds.
func TestSmoke(t *testing.T) {
	ctx := context.Background()
	s, err := openStack(ctx, testConfig(t), discardLogger())
	if err != nil {
		t.Fatalf("openStack: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := seedPrograms(ctx, s.programs, writePrograms(t), discardLogger()); err != nil {
		t.Fatalf("seedPrograms: %v", err)
	}

	srv := httptest.NewServer(newRouter(s, nil))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/programs", nil)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/v1/programs failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var programs []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&programs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(programs) != 2 {
		t.Errorf("got %d programs, want 2", len(programs))
	}
}

func TestSeedPrograms_SkipsExisting(t *testing.T) {
	ctx := context.Background()
	s, err := openStack(ctx, testConfig(t), discardLogger())
	if err != nil {
		t.Fatalf("openStack: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	path := writePrograms(t)
	n, err := seedPrograms(ctx, s.programs, path, discardLogger())
	if err != nil || n != 2 {
		t.Fatalf("first seed = %d, %v; want 2, nil", n, err)
	}
	n, err = seedPrograms(ctx, s.programs, path, discardLogger())
	if err != nil || n != 0 {
		t.Fatalf("second seed = %d, %v; want 0, nil", n, err)
	}
}

// TestRun exercises run() end-to-end: OTel, River, HTTP server, and
// graceful shutdown on context cancellation.
func TestRun(t *testing.T) {
	t.Setenv("OTEL_EXPORTER", "none")
	t.Setenv("OTEL_ENVIRONMENT", "test")

	cfg := testConfig(t)
	cfg.Seed.File = writePrograms(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, cfg, discardLogger()) }()

	// Wait for the HTTP server to become ready.
	serverURL := "http://localhost:19876"
	ready := false
	for range 50 {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, serverURL+"/api/v1/programs", nil)
		resp, reqErr := http.DefaultClient.Do(req)
		if reqErr == nil {
			resp.Body.Close()
			ready = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !ready {
		t.Fatal("server did not start within 5 seconds")
	}

	// The seeded programs reach the public catalog through the job queue.
	var services []map[string]any
	for range 50 {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, serverURL+"/api/v1/public/services", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET /api/v1/public/services failed: %v", err)
		}
		err = json.NewDecoder(resp.Body).Decode(&services)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(services) == 2 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if len(services) != 2 {
		t.Errorf("got %d published services, want 2", len(services))
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not exit within 10 seconds")
	}
}

// TestRun_InvalidDB verifies run() returns an error for an invalid database path.
func TestRun_InvalidDB(t *testing.T) {
	t.Setenv("OTEL_EXPORTER", "none")

	cfg := testConfig(t)
	cfg.HTTP.Port = 19877
	cfg.Database.Path = "/nonexistent/path/db.sqlite"

	if err := run(context.Background(), cfg, discardLogger()); err == nil {
		t.Fatal("expected error for invalid database path, got nil")
	}
}

func TestSeedAndStatsCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	programs := writePrograms(t)

	execute := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetArgs(args)
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		if err := cmd.ExecuteContext(context.Background()); err != nil {
			t.Fatalf("caseflow %s: %v", strings.Join(args, " "), err)
		}
		return out.String()
	}

	out := execute("seed", "--db", dbPath, "--file", programs)
	if !strings.Contains(out, "created 2 program(s)") {
		t.Errorf("seed output = %q", out)
	}

	out = execute("stats", "--db", dbPath, "--program", "bolsa")
	for _, want := range []string{"bolsa", "pending", "Remaining budget: 150000"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestSeedCommand_RequiresFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := newRootCmd()
	cmd.SetArgs([]string{"seed", "--db", filepath.Join(t.TempDir(), "x.db")})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected error without a programs file")
	}
}

func TestRenderStats(t *testing.T) {
	var buf bytes.Buffer
	stats := domain.ProgramStatistics{
		ProgramID:          "denuncia",
		Total:              3,
		ByState:            map[domain.State]int{domain.StateInReview: 2, domain.StateEnforced: 1},
		AverageDaysInState: map[domain.State]float64{domain.StateInReview: 2.5},
		Overdue:            1,
		RemainingBudget:    domain.Unlimited,
	}
	counts := map[domain.State]int64{domain.StateInReview: 3}

	renderStats(&buf, domain.FamilyEnvironmentalComplaint, stats, counts)

	out := buf.String()
	for _, want := range []string{"in_review", "2.5", "enforced", "Remaining budget: unlimited", "Overdue: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "pending") {
		t.Errorf("complaint table should not list pending:\n%s", out)
	}
}
