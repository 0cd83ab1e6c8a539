package usage

import (
	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
	"github.com/smallbiznis/entityusage/internal/usage/liveevents"
	"github.com/smallbiznis/entityusage/internal/usage/repository"
	"github.com/smallbiznis/entityusage/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(liveevents.NewHub),
	fx.Provide(func(entities entitydomain.Service) usagedomain.EntityResolver { return entities }),
	fx.Provide(service.New),
)
