package river_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"

	riveradapter "github.com/neomorfeo/caseflow/internal/adapter/river"
	"github.com/neomorfeo/caseflow/internal/adapter/sqlite"
	"github.com/neomorfeo/caseflow/internal/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.CaseEvent
}

func (s *recordingSink) Publish(_ context.Context, e domain.CaseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Events() []domain.CaseEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CaseEvent(nil), s.events...)
}

func setupTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	store, err := sqlite.New(t.TempDir() + "/river_test.db")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// startClient sets up River, subscribes to completions and starts the client.
func startClient(t *testing.T, store *sqlite.Store, sink domain.EventPublisher) (*riveradapter.Client, <-chan *goriver.Event) {
	t.Helper()
	ctx := context.Background()

	client, err := riveradapter.Setup(ctx, store.DB(), riveradapter.Config{
		Catalog: store.Catalog(),
		Sink:    sink,
	})
	if err != nil {
		t.Fatalf("river setup: %v", err)
	}

	// Subscribe to job completions before starting so we don't miss events.
	subscribeChan, subscribeCancel := client.Subscribe(goriver.EventKindJobCompleted)
	t.Cleanup(subscribeCancel)

	if err := client.Start(ctx); err != nil {
		t.Fatalf("river start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			t.Errorf("river stop: %v", err)
		}
	})

	return client, subscribeChan
}

func waitForJob(t *testing.T, ch <-chan *goriver.Event) *goriver.Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job completion")
		return nil
	}
}

func TestSetup_RequiresCatalog(t *testing.T) {
	store := setupTestStore(t)
	if _, err := riveradapter.Setup(context.Background(), store.DB(), riveradapter.Config{}); err == nil {
		t.Error("expected an error without a catalog")
	}
}

func TestPublisher_Publish_DeliversToSink(t *testing.T) {
	store := setupTestStore(t)
	sink := &recordingSink{}
	client, done := startClient(t, store, sink)

	pub := riveradapter.NewPublisher(client)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := domain.CaseEvent{
		Type:      domain.EventCaseTransitioned,
		CaseID:    "case-42",
		ProgramID: "bolsa",
		Family:    domain.FamilyBenefitGrant,
		From:      domain.StateScoring,
		To:        domain.StatePending,
		ActorID:   domain.SystemActor,
		At:        at,
	}

	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	job := waitForJob(t, done)
	if job.Job.Kind != "case.event" {
		t.Errorf("job kind = %q, want %q", job.Job.Kind, "case.event")
	}

	// The args are stored as JSON; verify key fields are present.
	argsStr := string(job.Job.EncodedArgs)
	for _, want := range []string{`"case_id":"case-42"`, `"program_id":"bolsa"`, `"to":"pending"`} {
		if !strings.Contains(argsStr, want) {
			t.Errorf("encoded args missing %s, got: %s", want, argsStr)
		}
	}

	got := sink.Events()
	if len(got) != 1 {
		t.Fatalf("sink received %d events, want 1", len(got))
	}
	if !got[0].At.Equal(at) {
		t.Errorf("At = %v, want %v", got[0].At, at)
	}
	got[0].At = at
	if got[0] != event {
		t.Errorf("sink event = %+v, want %+v", got[0], event)
	}
}

func TestPublisher_PublishProgramAsService_UpsertsCatalog(t *testing.T) {
	store := setupTestStore(t)
	client, done := startClient(t, store, nil)
	ctx := context.Background()

	pub := riveradapter.NewPublisher(client)
	descriptor := domain.ServiceDescriptor{
		Name:              "Bolsa Municipal",
		RequiredDocuments: []string{"id card"},
		EstimatedDays:     30,
		IsFree:            true,
	}

	for _, name := range []string{"Bolsa", "Bolsa Municipal"} {
		descriptor.Name = name
		if err := pub.PublishProgramAsService(ctx, "bolsa", descriptor); err != nil {
			t.Fatalf("PublishProgramAsService failed: %v", err)
		}
		if job := waitForJob(t, done); job.Job.Kind != "catalog.publish" {
			t.Errorf("job kind = %q, want %q", job.Job.Kind, "catalog.publish")
		}
	}

	entries, err := store.Catalog().List(ctx)
	if err != nil {
		t.Fatalf("listing catalog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d catalog entries, want 1", len(entries))
	}
	if entries[0].Descriptor.Name != "Bolsa Municipal" || !entries[0].Descriptor.IsFree {
		t.Errorf("entry = %+v", entries[0])
	}
}
