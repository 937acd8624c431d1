package migration

import (
	"strings"

	"github.com/palcoscenico/agibilita/internal/config"
	directorydomain "github.com/palcoscenico/agibilita/internal/directory/domain"
	filingdomain "github.com/palcoscenico/agibilita/internal/filing/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations target postgres; other dialects (sqlite
		// for local runs and tests) fall back to the model-driven schema.
		if strings.ToLower(cfg.DBType) != "postgres" {
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

// AutoMigrate builds the schema straight from the models.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&directorydomain.Venue{},
		&directorydomain.Client{},
		&directorydomain.Performer{},
		&filingdomain.Filing{},
		&filingdomain.PerformerAssignment{},
	)
}
