// Package migrate applies ordered, checksum-verified SQL migration
// files to the store on startup, extending the teacher's version-only
// tracking with a SHA-256 checksum so an already-applied version whose
// file content has since changed is refused rather than silently
// skipped or reapplied.
package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    checksum TEXT NOT NULL,
    execution_time_ms BIGINT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// ChecksumMismatchError is returned when an already-applied migration
// version is found on disk with content that no longer matches the
// checksum recorded at apply time.
type ChecksumMismatchError struct {
	Version          int
	Filename         string
	RecordedChecksum string
	FileChecksum     string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("migration_checksum_mismatch: version %d (%s) recorded checksum %s, file now hashes to %s",
		e.Version, e.Filename, e.RecordedChecksum, e.FileChecksum)
}

type migrationFile struct {
	version  int
	name     string
	filename string
	checksum string
	sql      string
}

func loadMigrationFiles(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory %s: %w", dir, err)
	}

	var migrations []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		ver, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(parts[1], ".sql")

		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(raw)

		migrations = append(migrations, migrationFile{
			version:  ver,
			name:     name,
			filename: e.Name(),
			checksum: hex.EncodeToString(sum[:]),
			sql:      string(raw),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}

// Run applies pending migrations from dir in version order. A missing
// schema_migrations table means a fresh database — every migration is
// pending. A version already recorded with a differing checksum is
// fatal and halts before applying anything further.
func Run(ctx context.Context, pool *pgxpool.Pool, dir string, logger *zap.Logger) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for migration: %w", err)
	}
	defer conn.Release()

	const migrationLockID int64 = 0x626d70636f6c6c // "bmpcoll" as int64
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}
	defer conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)

	if _, err := conn.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	migrations, err := loadMigrationFiles(dir)
	if err != nil {
		return err
	}

	recorded := make(map[int]string) // version -> checksum
	rows, err := conn.Query(ctx, "SELECT version, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("querying applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		var checksum string
		if err := rows.Scan(&v, &checksum); err != nil {
			rows.Close()
			return fmt.Errorf("scanning migration row: %w", err)
		}
		recorded[v] = checksum
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating migration rows: %w", err)
	}

	for _, m := range migrations {
		existingChecksum, applied := recorded[m.version]
		if applied {
			if existingChecksum != m.checksum {
				err := &ChecksumMismatchError{
					Version:          m.version,
					Filename:         m.filename,
					RecordedChecksum: existingChecksum,
					FileChecksum:     m.checksum,
				}
				logger.Error("migration checksum mismatch", zap.Error(err))
				return err
			}
			logger.Debug("migration already applied", zap.Int("version", m.version), zap.String("name", m.name))
			continue
		}

		logger.Info("applying migration", zap.Int("version", m.version), zap.String("file", m.filename))
		start := time.Now()

		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(ctx, m.sql); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("executing migration %d (%s): %w", m.version, m.filename, err)
		}

		elapsedMs := time.Since(start).Milliseconds()
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (version, name, checksum, execution_time_ms) VALUES ($1, $2, $3, $4)",
			m.version, m.name, m.checksum, elapsedMs,
		); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}

		logger.Info("migration applied", zap.Int("version", m.version), zap.Int64("execution_time_ms", elapsedMs))
	}

	return nil
}
