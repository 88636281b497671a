package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// Compile-time check: CatalogRepository implements domain.ServiceCatalog.
var _ domain.ServiceCatalog = (*CatalogRepository)(nil)

// CatalogRepository stores the public service catalog. Entries are keyed by
// program id, so republishing a program overwrites its entry.
type CatalogRepository struct {
	q querier
}

func (r *CatalogRepository) Upsert(ctx context.Context, entry domain.ServiceEntry) error {
	docs := entry.Descriptor.RequiredDocuments
	if docs == nil {
		docs = []string{}
	}
	docsJSON, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encoding required documents: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO service_catalog (program_id, name, description, required_documents, estimated_days, is_free, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(program_id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   required_documents = excluded.required_documents,
		   estimated_days = excluded.estimated_days,
		   is_free = excluded.is_free,
		   updated_at = excluded.updated_at`,
		entry.ProgramID, entry.Descriptor.Name, entry.Descriptor.Description, string(docsJSON),
		entry.Descriptor.EstimatedDays, boolToInt(entry.Descriptor.IsFree), formatTime(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting service entry: %w", err)
	}
	return nil
}

func (r *CatalogRepository) List(ctx context.Context) ([]domain.ServiceEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT program_id, name, description, required_documents, estimated_days, is_free, updated_at
		 FROM service_catalog ORDER BY name, program_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing service catalog: %w", err)
	}
	defer rows.Close()

	var entries []domain.ServiceEntry
	for rows.Next() {
		var e domain.ServiceEntry
		var docs, updatedAt string
		var isFree int
		if err := rows.Scan(&e.ProgramID, &e.Descriptor.Name, &e.Descriptor.Description, &docs,
			&e.Descriptor.EstimatedDays, &isFree, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning service entry: %w", err)
		}
		if err := json.Unmarshal([]byte(docs), &e.Descriptor.RequiredDocuments); err != nil {
			return nil, fmt.Errorf("decoding required documents: %w", err)
		}
		e.Descriptor.IsFree = isFree == 1
		e.UpdatedAt = parseTime(updatedAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
