package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureMintsULID(t *testing.T) {
	ctx, id := Ensure(context.Background())
	_, err := ulid.ParseStrict(id)
	require.NoError(t, err)
	assert.Equal(t, id, ID(ctx))

	again, same := Ensure(ctx)
	assert.Equal(t, id, same)
	assert.Equal(t, ctx, again)
}

func TestWithIDIgnoresBadInput(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ID(WithID(ctx, "  ")))
	assert.Empty(t, ID(WithID(ctx, strings.Repeat("x", maxIDLength+1))))
	assert.Equal(t, "req-1", ID(WithID(ctx, " req-1 ")))
	assert.Empty(t, ID(nil))
}
