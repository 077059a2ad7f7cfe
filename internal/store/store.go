// Package store defines the task storage contract and its in-memory and
// Redis implementations. The SQLite implementation lives in internal/db.
package store

import (
	"context"

	"github.com/ldi/workforce/pkg/models"
)

// Store is keyed storage of tasks. Implementations must be safe for
// concurrent use; every call is its own atomic unit and returned tasks are
// copies the caller may mutate freely.
type Store interface {
	// Create assigns a fresh id to t, stores it and returns the stored copy.
	Create(ctx context.Context, t *models.Task) (*models.Task, error)
	// Get returns models.ErrNotFound when id is unknown.
	Get(ctx context.Context, id int64) (*models.Task, error)
	// Save upserts by id. A zero id creates; an unknown non-zero id fails
	// with models.ErrNotFound.
	Save(ctx context.Context, t *models.Task) (*models.Task, error)
	FindAll(ctx context.Context) ([]*models.Task, error)
	FindByReference(ctx context.Context, referenceID int64, referenceType models.ReferenceType) ([]*models.Task, error)
	// FindByReferenceID matches the reference id across every reference type.
	FindByReferenceID(ctx context.Context, referenceID int64) ([]*models.Task, error)
	FindByAssignees(ctx context.Context, assigneeIDs []int64) ([]*models.Task, error)
}
