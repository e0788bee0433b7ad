package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Backup writes a consistent snapshot of the database to dst using
// VACUUM INTO, which copies a checkpointed, defragmented image without
// blocking readers.
func (s *Store) Backup(ctx context.Context, dst string) error {
	if dst == "" {
		return fmt.Errorf("backup destination cannot be empty")
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("backup destination already exists: %s", dst)
	}

	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	return nil
}

// Vacuum compacts the database file.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	return nil
}

// Restore replaces the database in dataDir with the snapshot at src.
// Must be called while no Store has the database open; the sidecar WAL
// and shared-memory files are removed so the snapshot loads clean.
func Restore(dataDir, src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("cannot access backup: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("backup source is a directory: %s", src)
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "xylem.db")
	for _, sidecar := range []string{dbPath + "-wal", dbPath + "-shm"} {
		os.Remove(sidecar)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dbPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open database for restore: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("restore copy failed: %w", err)
	}
	return nil
}
