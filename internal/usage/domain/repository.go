package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists usage records. Callers pass the handle to use, which
// may be a transaction.
type Repository interface {
	// Upsert writes counts keyed by (EntityID, UsageDate); stored percentile
	// ranks are left as they are.
	Upsert(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	Get(ctx context.Context, db *gorm.DB, entityID snowflake.ID, date string) (*UsageRecord, error)
	// RangeBeforeOrOn returns the records in the windowDays days ending on
	// date, newest first. Days without a report are absent.
	RangeBeforeOrOn(ctx context.Context, db *gorm.DB, entityID snowflake.ID, date time.Time, windowDays int) ([]UsageRecord, error)
	ListByTypeAndDate(ctx context.Context, db *gorm.DB, entityType, date string) ([]UsageRecord, error)
	UpdatePercentiles(ctx context.Context, db *gorm.DB, updates []PercentileUpdate) error
	Latest(ctx context.Context, db *gorm.DB, entityID snowflake.ID) (*UsageRecord, error)
	SumDailyCounts(ctx context.Context, db *gorm.DB, entityIDs []snowflake.ID, date string) (int64, error)
}
