package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entityusage/internal/config"
	entitydomain "github.com/smallbiznis/entityusage/internal/entity/domain"
	"github.com/smallbiznis/entityusage/internal/entity/repository"
	"github.com/smallbiznis/entityusage/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) entitydomain.Service {
	t.Helper()

	conn := dbtest.Open(t, &entitydomain.Entity{})
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	return New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Types: config.NewStaticEntityTypeConfigHolder(config.DefaultEntityTypeConfig()),
	})
}

func TestCreateBuildsFullyQualifiedName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	db, err := svc.Create(ctx, entitydomain.CreateRequest{EntityType: "database", Name: "Sales DB"})
	require.NoError(t, err)
	assert.Equal(t, "Sales DB", db.FullyQualifiedName)
	assert.Equal(t, "sales-db", db.Slug)
	assert.Nil(t, db.ParentID)

	table, err := svc.Create(ctx, entitydomain.CreateRequest{
		EntityType: "Table",
		Name:       " orders ",
		Parent:     "Sales DB",
		Metadata:   map[string]any{"owner": "finance"},
	})
	require.NoError(t, err)
	assert.Equal(t, "table", table.EntityType)
	assert.Equal(t, "Sales DB.orders", table.FullyQualifiedName)
	require.NotNil(t, table.ParentID)
	assert.Equal(t, db.ID, *table.ParentID)

	got, err := svc.GetByName(ctx, "table", "Sales DB.orders")
	require.NoError(t, err)
	assert.Equal(t, table.ID, got.ID)
	assert.Equal(t, "finance", got.Metadata["owner"])

	parent, err := svc.Parent(ctx, got)
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, db.ID, parent.ID)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, entitydomain.CreateRequest{EntityType: "database", Name: "warehouse"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  entitydomain.CreateRequest
		want error
	}{
		{name: "unknown type", req: entitydomain.CreateRequest{EntityType: "invalid", Name: "x"}, want: entitydomain.ErrEntityTypeNotFound},
		{name: "blank name", req: entitydomain.CreateRequest{EntityType: "table", Name: "  "}, want: entitydomain.ErrInvalidName},
		{name: "dotted name", req: entitydomain.CreateRequest{EntityType: "table", Name: "a.b"}, want: entitydomain.ErrInvalidName},
		{name: "type without parent", req: entitydomain.CreateRequest{EntityType: "dashboard", Name: "d", Parent: "warehouse"}, want: entitydomain.ErrInvalidParent},
		{name: "missing parent", req: entitydomain.CreateRequest{EntityType: "table", Name: "t", Parent: "nowhere"}, want: entitydomain.ErrInvalidParent},
		{name: "duplicate", req: entitydomain.CreateRequest{EntityType: "database", Name: "warehouse"}, want: entitydomain.ErrEntityExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLookupErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetByID(ctx, "table", "not-a-number")
	assert.ErrorIs(t, err, entitydomain.ErrInvalidID)

	_, err = svc.GetByID(ctx, "table", "12345")
	assert.ErrorIs(t, err, entitydomain.ErrEntityNotFound)

	_, err = svc.GetByName(ctx, "invalid", "x")
	assert.ErrorIs(t, err, entitydomain.ErrEntityTypeNotFound)

	_, err = svc.GetByName(ctx, "table", "")
	assert.ErrorIs(t, err, entitydomain.ErrEntityNotFound)

	db, err := svc.Create(ctx, entitydomain.CreateRequest{EntityType: "database", Name: "warehouse"})
	require.NoError(t, err)

	_, err = svc.GetByID(ctx, "table", db.ID.String())
	assert.ErrorIs(t, err, entitydomain.ErrEntityNotFound, "id lookups are scoped by type")

	got, err := svc.GetByID(ctx, "database", db.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "warehouse", got.Name)
}

func TestListChildrenAndByType(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	db, err := svc.Create(ctx, entitydomain.CreateRequest{EntityType: "database", Name: "shop"})
	require.NoError(t, err)

	var want []snowflake.ID
	for _, name := range []string{"orders", "customers", "payments"} {
		table, err := svc.Create(ctx, entitydomain.CreateRequest{EntityType: "table", Name: name, Parent: "shop"})
		require.NoError(t, err)
		want = append(want, table.ID)
	}
	_, err = svc.Create(ctx, entitydomain.CreateRequest{EntityType: "table", Name: "orphan"})
	require.NoError(t, err)

	ids, err := svc.ListChildIDs(ctx, db.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, ids)

	tables, err := svc.ListByType(ctx, "table")
	require.NoError(t, err)
	require.Len(t, tables, 4)
	assert.Equal(t, "orphan", tables[0].FullyQualifiedName)
	assert.Equal(t, "shop.customers", tables[1].FullyQualifiedName)

	parent, err := svc.Parent(ctx, &tables[0])
	require.NoError(t, err)
	assert.Nil(t, parent)
}

func TestResolveType(t *testing.T) {
	svc := newTestService(t)

	name, err := svc.ResolveType(" DashBoard ")
	require.NoError(t, err)
	assert.Equal(t, "dashboard", name)

	_, err = svc.ResolveType("invalid")
	assert.ErrorIs(t, err, entitydomain.ErrEntityTypeNotFound)
}
