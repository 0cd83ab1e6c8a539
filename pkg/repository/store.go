// Package repository holds a typed gorm query helper shared by the domain
// repositories.
package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/entityusage/pkg/db/option"
	"gorm.io/gorm"
)

// Store runs queries for model T against the handle given to each call, so
// one Store serves both plain connections and transactions.
type Store[T any] struct{}

func (Store[T]) Create(ctx context.Context, db *gorm.DB, resource *T) error {
	return db.WithContext(ctx).Create(resource).Error
}

// Find returns every row matching the non-zero fields of filter.
func (s Store[T]) Find(ctx context.Context, db *gorm.DB, filter *T, opts ...option.QueryOption) ([]T, error) {
	var rows []T
	if err := s.query(ctx, db, filter, opts...).Find(&rows).Error; err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// FindOne returns nil, nil when nothing matches.
func (s Store[T]) FindOne(ctx context.Context, db *gorm.DB, filter *T, opts ...option.QueryOption) (*T, error) {
	var row T
	err := s.query(ctx, db, filter, opts...).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Pluck scans a single column of the matching rows into dest.
func (s Store[T]) Pluck(ctx context.Context, db *gorm.DB, column string, filter *T, dest any, opts ...option.QueryOption) error {
	return s.query(ctx, db, filter, opts...).Pluck(column, dest).Error
}

func (Store[T]) query(ctx context.Context, db *gorm.DB, filter *T, opts ...option.QueryOption) *gorm.DB {
	q := db.WithContext(ctx).Model(new(T))
	if filter != nil {
		q = q.Where(filter)
	}
	for _, opt := range opts {
		q = opt.Apply(q)
	}
	return q
}
