package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EntityType declares a usage-tracked entity type and, optionally, the type its
// usage rolls up into.
type EntityType struct {
	Name   string `mapstructure:"name"`
	Parent string `mapstructure:"parent"`
}

type EntityTypeConfig struct {
	Types []EntityType `mapstructure:"types"`
}

func DefaultEntityTypeConfig() EntityTypeConfig {
	return EntityTypeConfig{
		Types: []EntityType{
			{Name: "database"},
			{Name: "table", Parent: "database"},
			{Name: "dashboard"},
			{Name: "chart"},
			{Name: "pipeline"},
			{Name: "topic"},
			{Name: "mlmodel"},
		},
	}
}

// Lookup returns the declared type with the given name.
func (c EntityTypeConfig) Lookup(name string) (EntityType, bool) {
	name = normalizeTypeName(name)
	for _, t := range c.Types {
		if normalizeTypeName(t.Name) == name {
			return EntityType{Name: name, Parent: normalizeTypeName(t.Parent)}, true
		}
	}
	return EntityType{}, false
}

type EntityTypeConfigHolder struct {
	current atomic.Value // holds EntityTypeConfig
}

// NewStaticEntityTypeConfigHolder returns a holder that never reloads.
func NewStaticEntityTypeConfigHolder(cfg EntityTypeConfig) *EntityTypeConfigHolder {
	holder := &EntityTypeConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewEntityTypeConfigHolder loads entity types from path, or from entity_types.yml in
// the usual locations when path is empty, and watches the file for changes.
func NewEntityTypeConfigHolder(path string) (*EntityTypeConfigHolder, error) {
	v := viper.New()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("entity_types")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/entityusage")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ENTITYUSAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	loaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		loaded = false
		v.SetDefault("entity.types", DefaultEntityTypeConfig().Types)
	}

	var cfg EntityTypeConfig
	if err := v.UnmarshalKey("entity", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateEntityTypeConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticEntityTypeConfigHolder(cfg)
	if !loaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EntityTypeConfig
		if err := v.UnmarshalKey("entity", &updated); err != nil {
			log.Printf("[entity-types] reload failed: %v", err)
			return
		}
		if err := ValidateEntityTypeConfig(updated); err != nil {
			log.Printf("[entity-types] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[entity-types] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *EntityTypeConfigHolder) Get() EntityTypeConfig {
	return h.current.Load().(EntityTypeConfig)
}

func ValidateEntityTypeConfig(cfg EntityTypeConfig) error {
	if len(cfg.Types) == 0 {
		return errors.New("entity.types cannot be empty")
	}

	parents := make(map[string]string, len(cfg.Types))
	for _, t := range cfg.Types {
		name := normalizeTypeName(t.Name)
		if name == "" {
			return errors.New("entity.types name cannot be empty")
		}
		if _, dup := parents[name]; dup {
			return fmt.Errorf("entity type %q declared twice", name)
		}
		parents[name] = normalizeTypeName(t.Parent)
	}

	for name, parent := range parents {
		if parent == "" {
			continue
		}
		if _, ok := parents[parent]; !ok {
			return fmt.Errorf("entity type %q has unknown parent %q", name, parent)
		}
		// walk the chain; more hops than types means a cycle
		seen := 0
		for cur := parent; cur != ""; cur = parents[cur] {
			if cur == name || seen > len(parents) {
				return fmt.Errorf("entity type %q has a cyclic parent chain", name)
			}
			seen++
		}
	}
	return nil
}

func normalizeTypeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
