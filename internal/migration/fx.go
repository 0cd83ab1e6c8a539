package migration

import (
	"github.com/smallbiznis/entityusage/internal/config"
	"github.com/smallbiznis/entityusage/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		dbType := db.ConfigFrom(cfg).Type
		if err := Apply(conn, dbType); err != nil {
			return err
		}
		log.Info("database schema ready", zap.String("db_type", dbType))
		return nil
	}),
)
