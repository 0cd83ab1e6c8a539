package ratelimit

import (
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/entityusage/internal/config"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(provideRedisClient),
	fx.Provide(NewUsageReportLimiter),
	fx.Provide(provideKeyLocker),
)

// provideKeyLocker yields a nil interface, not a typed nil, without Redis.
func provideKeyLocker(client *redis.Client, cfg config.Config) usagedomain.KeyLocker {
	if client == nil {
		return nil
	}
	return NewKeyLocker(client, time.Duration(cfg.RateLimit.KeyLockTTLSecond)*time.Second)
}
