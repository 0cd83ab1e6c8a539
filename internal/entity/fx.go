package entity

import (
	"github.com/smallbiznis/entityusage/internal/cache"
	"github.com/smallbiznis/entityusage/internal/entity/repository"
	"github.com/smallbiznis/entityusage/internal/entity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entity.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() cache.EntityResolverCache { return cache.NewEntityResolverCache() }),
	fx.Provide(service.New),
)
