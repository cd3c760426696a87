// Package catalog persists the Date → Exchange → Instrument hierarchy and answers lookups over it.
//
// Rows are deduplicated only by an exact match on every attribute the caller supplies.
// There is no natural-key unique constraint, so an exchange recorded with a different
// location on the same day becomes a second row. No lock is taken around a lookup and
// its insert: two concurrent ingestions of the same attributes may both insert.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"market-archive/internal/models"

	"gorm.io/gorm"
)

// Store is the persistence boundary used by ingestion and the query endpoints.
type Store interface {
	// GetOrCreate returns the identity of the row whose columns equal e.Attributes(),
	// inserting e when no such row exists. The identity is also written into e.
	GetOrCreate(ctx context.Context, e models.Entity) (uint, error)
	// Transaction runs fn against a Store whose calls share one database transaction.
	Transaction(ctx context.Context, fn func(Store) error) error
	Find(ctx context.Context, f Filter) ([]Record, error)
}

// StorageError reports a failed persistence call together with what was being stored.
type StorageError struct {
	Kind       string
	Attributes map[string]interface{}
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error on %s %v: %v", e.Kind, e.Attributes, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetOrCreate(ctx context.Context, e models.Entity) (uint, error) {
	attrs := e.Attributes()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(attrs).Take(e).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(e).Error
	})
	if err != nil {
		return 0, &StorageError{Kind: e.Kind(), Attributes: attrs, Err: err}
	}
	return e.Identity(), nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
