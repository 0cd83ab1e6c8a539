package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
)

type Service interface {
	ReportUsage(ctx context.Context, req ReportUsageRequest) (*UsageRecord, error)
	ReportUsageByName(ctx context.Context, req ReportUsageByNameRequest) (*UsageRecord, error)
	ComputePercentile(ctx context.Context, entityType, date string) error
	GetUsage(ctx context.Context, req GetUsageRequest) (*EntityUsage, error)
	GetUsageByName(ctx context.Context, req GetUsageByNameRequest) (*EntityUsage, error)
	// LatestUsage returns the newest record of an entity, or nil when it has none.
	LatestUsage(ctx context.Context, entityID snowflake.ID) (*UsageDetails, error)
}

type ReportUsageRequest struct {
	EntityType string
	EntityID   string
	Date       string
	Count      int64
}

type ReportUsageByNameRequest struct {
	EntityType         string
	FullyQualifiedName string
	Date               string
	Count              int64
}

// GetUsageRequest asks for the Days days ending on Date. An empty Date means
// today; Days follows ClampDays.
type GetUsageRequest struct {
	EntityType string
	EntityID   string
	Date       string
	Days       *int
}

type GetUsageByNameRequest struct {
	EntityType         string
	FullyQualifiedName string
	Date               string
	Days               *int
}

type EntityUsage struct {
	Entity entitydomain.Reference `json:"entity"`
	Usage  []UsageDetails         `json:"usage"`
}

// EntityResolver confirms entities exist and exposes their rollup parents.
type EntityResolver interface {
	ResolveType(entityType string) (string, error)
	GetByID(ctx context.Context, entityType, id string) (*entitydomain.Entity, error)
	GetByName(ctx context.Context, entityType, fqn string) (*entitydomain.Entity, error)
	Parent(ctx context.Context, e *entitydomain.Entity) (*entitydomain.Entity, error)
	ListChildIDs(ctx context.Context, parentID snowflake.ID) ([]snowflake.ID, error)
}

// KeyLocker serializes work on a key across processes. The returned func
// releases the lock.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

var (
	ErrInvalidUsageCount = errors.New("invalid_usage_count")
	ErrInvalidUsageDate  = errors.New("invalid_usage_date")
	ErrLockTimeout       = errors.New("usage_lock_timeout")
)
