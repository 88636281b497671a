package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// Compile-time checks: Publisher implements both publishing ports.
var (
	_ domain.EventPublisher   = (*Publisher)(nil)
	_ domain.CatalogPublisher = (*Publisher)(nil)
)

// EventJobArgs carries a snapshot of a case transition. River serializes
// this as JSON into its job queue table, so the worker never needs to query
// the database.
type EventJobArgs struct {
	Type      string    `json:"type"`
	CaseID    string    `json:"case_id"`
	ProgramID string    `json:"program_id"`
	Family    string    `json:"family"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	ActorID   string    `json:"actor_id"`
	At        time.Time `json:"at"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (EventJobArgs) Kind() string { return "case.event" }

func (a EventJobArgs) event() domain.CaseEvent {
	return domain.CaseEvent{
		Type:      domain.EventType(a.Type),
		CaseID:    a.CaseID,
		ProgramID: a.ProgramID,
		Family:    domain.Family(a.Family),
		From:      domain.State(a.From),
		To:        domain.State(a.To),
		ActorID:   a.ActorID,
		At:        a.At,
	}
}

// CatalogJobArgs carries a service descriptor to publish.
type CatalogJobArgs struct {
	ProgramID   string                   `json:"program_id"`
	Descriptor  domain.ServiceDescriptor `json:"descriptor"`
	PublishedAt time.Time                `json:"published_at"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (CatalogJobArgs) Kind() string { return "catalog.publish" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher enqueues case events and catalog publications as River jobs.
type Publisher struct {
	client *Client
	now    func() time.Time
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client, now: time.Now}
}

// Publish enqueues a case event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.CaseEvent) error {
	_, err := p.client.Insert(ctx, EventJobArgs{
		Type:      string(event.Type),
		CaseID:    event.CaseID,
		ProgramID: event.ProgramID,
		Family:    string(event.Family),
		From:      string(event.From),
		To:        string(event.To),
		ActorID:   event.ActorID,
		At:        event.At,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing event job: %w", err)
	}
	return nil
}

// PublishProgramAsService enqueues an upsert of the program's catalog entry.
func (p *Publisher) PublishProgramAsService(ctx context.Context, programID string, descriptor domain.ServiceDescriptor) error {
	_, err := p.client.Insert(ctx, CatalogJobArgs{
		ProgramID:   programID,
		Descriptor:  descriptor,
		PublishedAt: p.now().UTC(),
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing catalog job: %w", err)
	}
	return nil
}
