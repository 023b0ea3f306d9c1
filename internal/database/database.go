package database

import (
	"fmt"
	"time"

	"github.com/atividade/backend/internal/config"
	"github.com/atividade/backend/internal/models"
	"github.com/atividade/backend/pkg/logger"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == config.DBDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	logger.Info("database_connected", map[string]interface{}{
		"driver": cfg.Driver,
		"name":   cfg.Name,
	})
	return db, nil
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DBDriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.SSLMode,
		)
		return postgres.Open(dsn), nil
	case config.DBDriverSQLite:
		return sqlite.Open(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Atividade{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	backfilled, err := backfillSearchKeys(db)
	if err != nil {
		return fmt.Errorf("backfill search keys: %w", err)
	}
	logger.Info("database_migrated", map[string]interface{}{
		"search_keys_backfilled": backfilled,
	})
	return nil
}

// backfillSearchKeys folds the search columns of rows written before they existed.
func backfillSearchKeys(db *gorm.DB) (int, error) {
	var pending []models.Atividade
	total := 0
	result := db.Where("texto_busca = '' AND descricao_busca = '' AND (texto <> '' OR descricao <> '')").
		FindInBatches(&pending, 200, func(tx *gorm.DB, _ int) error {
			for i := range pending {
				pending[i].FoldSearchKeys()
				err := tx.Model(&models.Atividade{}).
					Where("id = ?", pending[i].ID).
					Updates(map[string]interface{}{
						"texto_busca":     pending[i].TextoBusca,
						"descricao_busca": pending[i].DescricaoBusca,
					}).Error
				if err != nil {
					return err
				}
			}
			total += len(pending)
			return nil
		})
	return total, result.Error
}
