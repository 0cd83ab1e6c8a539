package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/entityusage/internal/cache"
	"github.com/smallbiznis/entityusage/internal/config"
	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
	"github.com/smallbiznis/entityusage/pkg/db"
	"github.com/smallbiznis/entityusage/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    entitydomain.Repository
	Types   *config.EntityTypeConfigHolder
	Cache   cache.EntityResolverCache `optional:"true"`
	Metrics *telemetry.Metrics        `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    entitydomain.Repository
	genID   *snowflake.Node
	types   *config.EntityTypeConfigHolder
	cache   cache.EntityResolverCache
	metrics *telemetry.Metrics
}

func New(p Params) entitydomain.Service {
	resolver := p.Cache
	if resolver == nil {
		resolver = cache.NewEntityResolverCache()
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("entity.service"),
		repo:    p.Repo,
		genID:   p.GenID,
		types:   p.Types,
		cache:   resolver,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req entitydomain.CreateRequest) (*entitydomain.Entity, error) {
	typ, err := s.lookupType(req.EntityType)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || strings.Contains(name, entitydomain.FQNSeparator) {
		return nil, entitydomain.ErrInvalidName
	}

	fqn := name
	var parentID *snowflake.ID
	if parentFQN := strings.TrimSpace(req.Parent); parentFQN != "" {
		if typ.Parent == "" {
			return nil, entitydomain.ErrInvalidParent
		}
		parent, err := s.repo.FindByFQN(ctx, s.db, typ.Parent, parentFQN)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, entitydomain.ErrInvalidParent
		}
		fqn = parent.FullyQualifiedName + entitydomain.FQNSeparator + name
		parentID = &parent.ID
	}

	now := time.Now().UTC()
	e := &entitydomain.Entity{
		ID:                 s.genID.Generate(),
		EntityType:         typ.Name,
		Name:               name,
		FullyQualifiedName: fqn,
		Slug:               slug.Make(fqn),
		ParentID:           parentID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if len(req.Metadata) > 0 {
		e.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Insert(ctx, s.db, e); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, entitydomain.ErrEntityExists
		}
		return nil, err
	}

	s.log.Debug("entity created",
		zap.String("entity_type", e.EntityType),
		zap.String("entity_id", e.ID.String()),
	)
	return e, nil
}

func (s *Service) GetByID(ctx context.Context, entityType, id string) (*entitydomain.Entity, error) {
	typ, err := s.lookupType(entityType)
	if err != nil {
		return nil, err
	}

	entityID, err := entitydomain.ParseID(strings.TrimSpace(id))
	if err != nil || entityID == 0 {
		return nil, entitydomain.ErrInvalidID
	}

	e, hit, err := s.cache.ByID(ctx, typ.Name, entityID, func(ctx context.Context) (entitydomain.Entity, error) {
		return s.find(s.repo.FindByID(ctx, s.db, typ.Name, entityID))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveEntityLookup(hit)
	return &e, nil
}

func (s *Service) GetByName(ctx context.Context, entityType, fqn string) (*entitydomain.Entity, error) {
	typ, err := s.lookupType(entityType)
	if err != nil {
		return nil, err
	}

	fqn = strings.TrimSpace(fqn)
	if fqn == "" {
		return nil, entitydomain.ErrEntityNotFound
	}

	e, hit, err := s.cache.ByName(ctx, typ.Name, fqn, func(ctx context.Context) (entitydomain.Entity, error) {
		return s.find(s.repo.FindByFQN(ctx, s.db, typ.Name, fqn))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveEntityLookup(hit)
	return &e, nil
}

func (s *Service) Parent(ctx context.Context, e *entitydomain.Entity) (*entitydomain.Entity, error) {
	if e == nil || e.ParentID == nil {
		return nil, nil
	}
	typ, err := s.lookupType(e.EntityType)
	if err != nil {
		return nil, err
	}
	if typ.Parent == "" {
		return nil, nil
	}
	return s.GetByID(ctx, typ.Parent, e.ParentID.String())
}

func (s *Service) ListChildIDs(ctx context.Context, parentID snowflake.ID) ([]snowflake.ID, error) {
	return s.repo.ListChildIDs(ctx, s.db, parentID)
}

func (s *Service) ListByType(ctx context.Context, entityType string) ([]entitydomain.Entity, error) {
	typ, err := s.lookupType(entityType)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByType(ctx, s.db, typ.Name)
}

func (s *Service) ResolveType(entityType string) (string, error) {
	typ, err := s.lookupType(entityType)
	if err != nil {
		return "", err
	}
	return typ.Name, nil
}

func (s *Service) lookupType(entityType string) (config.EntityType, error) {
	typ, ok := s.types.Get().Lookup(entityType)
	if !ok {
		return config.EntityType{}, entitydomain.ErrEntityTypeNotFound
	}
	return typ, nil
}

func (s *Service) find(e *entitydomain.Entity, err error) (entitydomain.Entity, error) {
	if err != nil {
		return entitydomain.Entity{}, err
	}
	if e == nil {
		return entitydomain.Entity{}, entitydomain.ErrEntityNotFound
	}
	return *e, nil
}
