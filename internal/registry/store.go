// Package registry provides the persistent store and service layer for
// registered database instances.
package registry

import (
	"context"

	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

// Store defines the persistence contract for instance records.
// A userID of "" means unscoped: the operation sees all records.
type Store interface {
	// Open opens the backing database. Use ":memory:" for an in-memory store.
	Open(path string) error

	// Close closes the backing database.
	Close() error

	// Migrate runs all pending schema migrations.
	Migrate() error

	// ListInstances returns all instances, optionally filtered by user scope.
	ListInstances(ctx context.Context, userID string) ([]*core.Instance, error)

	// GetInstance retrieves an instance by id within the user scope.
	GetInstance(ctx context.Context, id int64, userID string) (*core.Instance, error)

	// GetInstanceByName retrieves an instance by display name within the
	// user scope. Returns nil, nil when no record matches.
	GetInstanceByName(ctx context.Context, name, userID string) (*core.Instance, error)

	// CreateInstance persists a new instance and fills in its ID.
	CreateInstance(ctx context.Context, inst *core.Instance) error

	// UpdateInstance persists all mutable fields of an existing instance.
	UpdateInstance(ctx context.Context, inst *core.Instance) error

	// DeleteInstance removes an instance by id within the user scope.
	DeleteInstance(ctx context.Context, id int64, userID string) error
}
