package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
	"github.com/smallbiznis/entityusage/pkg/db/option"
	"github.com/smallbiznis/entityusage/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Store[entitydomain.Entity]
}

func Provide() entitydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, e *entitydomain.Entity) error {
	return r.store.Create(ctx, db, e)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, entityType string, id snowflake.ID) (*entitydomain.Entity, error) {
	return r.store.FindOne(ctx, db, &entitydomain.Entity{ID: id, EntityType: entityType})
}

func (r *repo) FindByFQN(ctx context.Context, db *gorm.DB, entityType, fqn string) (*entitydomain.Entity, error) {
	return r.store.FindOne(ctx, db, &entitydomain.Entity{EntityType: entityType, FullyQualifiedName: fqn})
}

func (r *repo) ListChildIDs(ctx context.Context, db *gorm.DB, parentID snowflake.ID) ([]snowflake.ID, error) {
	ids := []snowflake.ID{}
	err := r.store.Pluck(ctx, db, "id", &entitydomain.Entity{ParentID: &parentID}, &ids, option.WithOrder("id", false))
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListByType(ctx context.Context, db *gorm.DB, entityType string) ([]entitydomain.Entity, error) {
	return r.store.Find(ctx, db, &entitydomain.Entity{EntityType: entityType}, option.WithOrder("fully_qualified_name", false))
}
