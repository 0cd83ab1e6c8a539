package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// ResolveType returns the canonical name of a registered entity type.
	ResolveType(entityType string) (string, error)
	Create(ctx context.Context, req CreateRequest) (*Entity, error)
	GetByID(ctx context.Context, entityType, id string) (*Entity, error)
	GetByName(ctx context.Context, entityType, fqn string) (*Entity, error)
	// Parent returns the rollup parent of e, or nil when its type has none.
	Parent(ctx context.Context, e *Entity) (*Entity, error)
	ListChildIDs(ctx context.Context, parentID snowflake.ID) ([]snowflake.ID, error)
	ListByType(ctx context.Context, entityType string) ([]Entity, error)
}

type CreateRequest struct {
	EntityType string         `json:"-"`
	Name       string         `json:"name"`
	Parent     string         `json:"parent,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Reference is the compact entity view embedded in usage responses.
type Reference struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
}

type Response struct {
	ID                 string         `json:"id"`
	EntityType         string         `json:"entityType"`
	Name               string         `json:"name"`
	FullyQualifiedName string         `json:"fullyQualifiedName"`
	Slug               string         `json:"slug"`
	ParentID           string         `json:"parentId,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

var (
	ErrEntityNotFound     = errors.New("entity_not_found")
	ErrEntityTypeNotFound = errors.New("entity_type_not_found")
	ErrEntityExists       = errors.New("entity_already_exists")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidParent      = errors.New("invalid_parent")
	ErrInvalidID          = errors.New("invalid_id")
)

// FQNSeparator joins a parent's fully qualified name and a child name.
const FQNSeparator = "."

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}

func (e *Entity) Reference() Reference {
	return Reference{
		ID:                 e.ID.String(),
		Type:               e.EntityType,
		Name:               e.Name,
		FullyQualifiedName: e.FullyQualifiedName,
	}
}

func (e *Entity) Response() Response {
	resp := Response{
		ID:                 e.ID.String(),
		EntityType:         e.EntityType,
		Name:               e.Name,
		FullyQualifiedName: e.FullyQualifiedName,
		Slug:               e.Slug,
		Metadata:           e.Metadata,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
	if e.ParentID != nil {
		resp.ParentID = e.ParentID.String()
	}
	return resp
}
