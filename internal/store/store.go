package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/glebarez/sqlite"
	"github.com/netpulse/netpulse/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store owns the embedded SQLite database. Writers are serialized by a
// per-store mutex; readers run concurrently against the WAL
// snapshot. Higher layers go through the typed repositories, with one
// exception: the retention-log trim in internal/app passes its own SQL
// condition to Write.
type Store struct {
	db      *gorm.DB
	writeMu sync.Mutex
}

// Open opens (creating if needed) the store file at path and runs any
// pending migrations. The parent directory is created 0700 and the
// database file forced to 0600.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, common.FatalError(err, "create data directory")
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return nil, common.FatalError(err, "restrict data directory")
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, common.FatalError(err, "open store")
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}

	if err := os.Chmod(path, 0o600); err != nil {
		zap.L().Warn("failed to restrict store file mode", zap.String("path", path), zap.Error(err))
	}
	return s, nil
}

// Read returns a context-scoped handle for read-only queries.
func (s *Store) Read(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Write runs fn inside one transaction under the writer lock. All
// mutations go through here so write transactions never contend at the
// SQLite level.
func (s *Store) Write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.WithContext(ctx).Transaction(fn)
}

// ReadTx runs fn inside a single read transaction so multi-query reads
// observe one consistent snapshot.
func (s *Store) ReadTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DropAll removes every table. Administrative wipe only, never called
// by background tasks.
func (s *Store) DropAll() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Migrator().DropTable(tablesAndVersions()...)
}
