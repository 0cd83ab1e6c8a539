package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entity *Entity) error
	FindByID(ctx context.Context, db *gorm.DB, entityType string, id snowflake.ID) (*Entity, error)
	FindByFQN(ctx context.Context, db *gorm.DB, entityType, fqn string) (*Entity, error)
	ListChildIDs(ctx context.Context, db *gorm.DB, parentID snowflake.ID) ([]snowflake.ID, error)
	ListByType(ctx context.Context, db *gorm.DB, entityType string) ([]Entity, error)
}
