package database

import (
	"errors"
	"time"

	"github.com/quietink/thoughts/backend/internal/thoughts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillSortingDates = "2025-08-12_backfill_sorting_dates"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillSortingDates, apply: backfillSortingDates},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillSortingDates repairs rows written before the sorting_date column
// existed by deriving the bucket from the last write timestamp.
func backfillSortingDates(db *gorm.DB) error {
	var stale []thoughts.Thought
	if err := db.Where("sorting_date = ''").Find(&stale).Error; err != nil {
		return err
	}
	for _, thought := range stale {
		err := db.Model(&thoughts.Thought{}).
			Where("id = ?", thought.ID).
			Update("sorting_date", thoughts.SortingDateAt(thought.UpdatedAt)).Error
		if err != nil {
			return err
		}
	}
	return nil
}
