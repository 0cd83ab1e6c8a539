package cache

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
	"golang.org/x/sync/singleflight"
)

const defaultEntityTTL = 5 * time.Minute

// EntityResolverCache memoizes entity lookups on the report hot path. Only
// successful lookups are cached so a newly created entity resolves at once.
type EntityResolverCache interface {
	ByName(ctx context.Context, entityType, fqn string, load EntityLoader) (entitydomain.Entity, bool, error)
	ByID(ctx context.Context, entityType string, id snowflake.ID, load EntityLoader) (entitydomain.Entity, bool, error)
	Forget(e entitydomain.Entity)
}

// EntityLoader fetches an entity on a cache miss.
type EntityLoader func(ctx context.Context) (entitydomain.Entity, error)

type entityResolverCache struct {
	entities Cache[string, entitydomain.Entity]
	group    singleflight.Group
	ttl      time.Duration
}

func NewEntityResolverCache(opts ...Option) EntityResolverCache {
	return &entityResolverCache{
		entities: NewTTLCache[string, entitydomain.Entity](opts...),
		ttl:      defaultEntityTTL,
	}
}

// ByName returns the cached entity for (type, fqn) or loads it once for all
// concurrent callers. hit reports whether the cache answered.
func (c *entityResolverCache) ByName(ctx context.Context, entityType, fqn string, load EntityLoader) (entitydomain.Entity, bool, error) {
	return c.resolve(ctx, cacheKey(entityType, "name", fqn), load)
}

func (c *entityResolverCache) ByID(ctx context.Context, entityType string, id snowflake.ID, load EntityLoader) (entitydomain.Entity, bool, error) {
	return c.resolve(ctx, cacheKey(entityType, "id", id.String()), load)
}

func (c *entityResolverCache) Forget(e entitydomain.Entity) {
	c.entities.Delete(cacheKey(e.EntityType, "name", e.FullyQualifiedName))
	c.entities.Delete(cacheKey(e.EntityType, "id", e.ID.String()))
}

func (c *entityResolverCache) resolve(ctx context.Context, key string, load EntityLoader) (entitydomain.Entity, bool, error) {
	if e, ok := c.entities.Get(key); ok {
		return e, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		e, err := load(ctx)
		if err != nil {
			return entitydomain.Entity{}, err
		}
		c.entities.Set(key, e, c.ttl)
		return e, nil
	})
	if err != nil {
		return entitydomain.Entity{}, false, err
	}
	return v.(entitydomain.Entity), false, nil
}

func cacheKey(entityType, kind, value string) string {
	return strings.ToLower(strings.TrimSpace(entityType)) + "|" + kind + "|" + strings.TrimSpace(value)
}
