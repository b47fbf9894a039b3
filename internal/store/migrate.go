package store

import (
	"time"

	"github.com/netpulse/netpulse/internal/domain"
	"github.com/netpulse/netpulse/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// A migration moves the schema from version-1 to version. Migrations
// run in order inside one transaction each; the schema_version row is
// advanced in the same transaction, so a failed migration leaves the
// store at its prior version.
type migration struct {
	version int
	name    string
	run     func(tx *gorm.DB) error
}

var migrations = []migration{
	{
		version: 1,
		name:    "base schema",
		run: func(tx *gorm.DB) error {
			return tx.Migrator().AutoMigrate(domain.Tables...)
		},
	},
}

func tablesAndVersions() []interface{} {
	return domain.Tables
}

func (s *Store) migrate() error {
	if err := s.db.Migrator().AutoMigrate(&domain.SchemaVersion{}); err != nil {
		return common.FatalError(err, "prepare schema_version")
	}

	var current domain.SchemaVersion
	err := s.db.Order("version DESC").First(&current).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return common.FatalError(err, "read schema version")
	}

	for _, m := range migrations {
		if m.version <= current.Version {
			continue
		}
		m := m
		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := m.run(tx); err != nil {
				return err
			}
			return tx.Save(&domain.SchemaVersion{
				ID:        1,
				Version:   m.version,
				UpdatedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return common.FatalError(err, "run migration "+m.name)
		}
		zap.L().Info("applied store migration",
			zap.Int("version", m.version),
			zap.String("name", m.name))
	}
	return nil
}

// SchemaVersion reports the current schema version of the store.
func (s *Store) SchemaVersion() int {
	var current domain.SchemaVersion
	if err := s.db.Order("version DESC").First(&current).Error; err != nil {
		return 0
	}
	return current.Version
}
