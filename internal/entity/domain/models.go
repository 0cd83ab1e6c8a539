package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Entity is a catalog object whose usage is tracked.
type Entity struct {
	ID                 snowflake.ID      `json:"id" gorm:"primaryKey"`
	EntityType         string            `json:"entity_type" gorm:"type:varchar(64);not null;uniqueIndex:ux_entities_type_fqn,priority:1"`
	Name               string            `json:"name" gorm:"type:varchar(255);not null"`
	FullyQualifiedName string            `json:"fully_qualified_name" gorm:"type:varchar(512);not null;uniqueIndex:ux_entities_type_fqn,priority:2"`
	Slug               string            `json:"slug" gorm:"type:varchar(512);not null"`
	ParentID           *snowflake.ID     `json:"parent_id,omitempty" gorm:"index:ix_entities_parent"`
	Metadata           datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time         `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Entity) TableName() string { return "entities" }
