package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/groundworklabs/groundwork/internal/attr"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added records.dependencies for reverse-order destroys
const currentSchemaVersion = 1

const (
	selectRecordsSQLite = `
		SELECT name, type, identity, inputs, outputs, inputs_hash, protect, dependencies, seq
		FROM records
		ORDER BY name COLLATE BINARY ASC`
	updateMetaSQLite = `UPDATE snapshot_meta SET serial = ?, checksum = ? WHERE id = 1`
)

// SQLite is the default Backend: a single-file state database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Backend = (*SQLite)(nil)

// OpenSQLite creates or opens a state database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to state database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := ensureSnapshotMeta(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot metadata: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the record for a logical name.
func (s *SQLite) Get(ctx context.Context, name string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, type, identity, inputs, outputs, inputs_hash, protect, dependencies, seq
		FROM records
		WHERE name = ?
	`, name)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put writes a record, overwriting any previous version atomically.
// The snapshot serial advances and the body checksum is recomputed in
// the same transaction. On success rec.Seq is set to the serial of this
// write.
func (s *SQLite) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Name == "" {
		return fmt.Errorf("put record: name required")
	}

	inputsJSON, outputsJSON, depsJSON, err := marshalRecord(rec)
	if err != nil {
		return fmt.Errorf("put record %q: %w", rec.Name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put record %q: begin tx: %w", rec.Name, err)
	}
	defer tx.Rollback() // No-op if committed

	var serial int64
	if err := tx.QueryRowContext(ctx, `SELECT serial FROM snapshot_meta WHERE id = 1`).Scan(&serial); err != nil {
		return fmt.Errorf("put record %q: read serial: %w", rec.Name, err)
	}
	serial++

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records
		(name, type, identity, inputs, outputs, inputs_hash, protect, dependencies, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			type = excluded.type,
			identity = excluded.identity,
			inputs = excluded.inputs,
			outputs = excluded.outputs,
			inputs_hash = excluded.inputs_hash,
			protect = excluded.protect,
			dependencies = excluded.dependencies,
			seq = excluded.seq
	`, rec.Name, rec.Type, rec.Identity, inputsJSON, outputsJSON,
		rec.InputsHash, rec.Protect, depsJSON, serial)
	if err != nil {
		return fmt.Errorf("put record %q: %w", rec.Name, err)
	}

	if err := refreshMeta(ctx, tx, serial, selectRecordsSQLite, updateMetaSQLite); err != nil {
		return fmt.Errorf("put record %q: %w", rec.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put record %q: commit: %w", rec.Name, err)
	}

	rec.Seq = serial
	return nil
}

// Delete removes a record. Deleting an absent record is a no-op and
// does not advance the serial.
func (s *SQLite) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete record %q: begin tx: %w", name, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete record %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record %q: rows affected: %w", name, err)
	}
	if n == 0 {
		return nil
	}

	var serial int64
	if err := tx.QueryRowContext(ctx, `SELECT serial FROM snapshot_meta WHERE id = 1`).Scan(&serial); err != nil {
		return fmt.Errorf("delete record %q: read serial: %w", name, err)
	}
	serial++

	if err := refreshMeta(ctx, tx, serial, selectRecordsSQLite, updateMetaSQLite); err != nil {
		return fmt.Errorf("delete record %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete record %q: commit: %w", name, err)
	}
	return nil
}

// List returns all records ordered by name.
func (s *SQLite) List(ctx context.Context) ([]Record, error) {
	return queryRecords(ctx, s.db, selectRecordsSQLite)
}

// ReadSnapshot returns the full state with its serial, lineage, and
// verified checksum. A mismatch between the stored checksum and the one
// recomputed over the record set means the state was corrupted or
// tampered with and is surfaced as StateCorruptionError.
func (s *SQLite) ReadSnapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	var snap Snapshot
	err = tx.QueryRowContext(ctx, `SELECT serial, lineage, checksum FROM snapshot_meta WHERE id = 1`).
		Scan(&snap.Serial, &snap.Lineage, &snap.Checksum)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	records, err := queryRecords(ctx, tx, selectRecordsSQLite)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	snap.Records = records

	body, err := snapshotBody(records)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if computed := attr.SnapshotChecksum(body); computed != snap.Checksum {
		return nil, &StateCorruptionError{
			Reason: fmt.Sprintf("snapshot checksum mismatch: recorded %s, computed %s", snap.Checksum, computed),
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("read snapshot: commit: %w", err)
	}
	return &snap, nil
}

// WriteSnapshot replaces the full record set in one transaction.
//
// Optimistic concurrency: snap.Serial must equal the stored serial (the
// value the caller read); any interleaved mutation makes the write fail
// with ErrSerialConflict. On success the stored serial advances and
// snap.Serial, snap.Checksum, and snap.Lineage are updated to the
// committed values.
func (s *SQLite) WriteSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("write snapshot: nil snapshot")
	}

	recs := slices.Clone(snap.Records)
	sortRecords(recs)
	for i := 1; i < len(recs); i++ {
		if recs[i].Name == recs[i-1].Name {
			return fmt.Errorf("write snapshot: duplicate record name %q", recs[i].Name)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write snapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	var serial int64
	var lineage string
	if err := tx.QueryRowContext(ctx, `SELECT serial, lineage FROM snapshot_meta WHERE id = 1`).
		Scan(&serial, &lineage); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if snap.Lineage != "" && snap.Lineage != lineage {
		return &StateCorruptionError{
			Reason: fmt.Sprintf("lineage mismatch: backend %s, snapshot %s", lineage, snap.Lineage),
		}
	}
	if snap.Serial != serial {
		return fmt.Errorf("write snapshot: backend at serial %d, snapshot based on %d: %w",
			serial, snap.Serial, ErrSerialConflict)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("write snapshot: clear records: %w", err)
	}
	for i := range recs {
		rec := &recs[i]
		inputsJSON, outputsJSON, depsJSON, err := marshalRecord(rec)
		if err != nil {
			return fmt.Errorf("write snapshot: record %q: %w", rec.Name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO records
			(name, type, identity, inputs, outputs, inputs_hash, protect, dependencies, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.Name, rec.Type, rec.Identity, inputsJSON, outputsJSON,
			rec.InputsHash, rec.Protect, depsJSON, rec.Seq)
		if err != nil {
			return fmt.Errorf("write snapshot: record %q: %w", rec.Name, err)
		}
	}

	serial++
	body, err := snapshotBody(recs)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	checksum := attr.SnapshotChecksum(body)
	if _, err := tx.ExecContext(ctx, updateMetaSQLite, serial, checksum); err != nil {
		return fmt.Errorf("write snapshot: update meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write snapshot: commit: %w", err)
	}

	snap.Serial = serial
	snap.Checksum = checksum
	snap.Lineage = lineage
	return nil
}

// Lock acquires the exclusive reconciliation lease. A live lease held
// by someone else yields LockContentionError; an expired lease is
// stolen (crash recovery). Acquisition is try-once, never blocking.
func (s *SQLite) Lock(ctx context.Context, req LockRequest) (*LockHandle, error) {
	if req.Operation == "" {
		return nil, fmt.Errorf("lock: operation required")
	}
	holder := req.Holder
	if holder == "" {
		holder = uuid.NewString()
	}
	lease := req.Lease
	if lease <= 0 {
		lease = DefaultLease
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("lock: begin tx: %w", err)
	}
	defer tx.Rollback()

	var curHolder, curOp string
	var curAcquired, curExpires int64
	err = tx.QueryRowContext(ctx, `SELECT holder, operation, acquired, expires FROM state_lock WHERE id = 1`).
		Scan(&curHolder, &curOp, &curAcquired, &curExpires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Lock is free.
	case err != nil:
		return nil, fmt.Errorf("lock: %w", err)
	case curExpires > now.Unix():
		return nil, &LockContentionError{
			Holder:    curHolder,
			Operation: curOp,
			Since:     time.Unix(curAcquired, 0).UTC(),
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO state_lock (id, holder, operation, acquired, expires)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			holder = excluded.holder,
			operation = excluded.operation,
			acquired = excluded.acquired,
			expires = excluded.expires
	`, holder, req.Operation, now.Unix(), now.Add(lease).Unix())
	if err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("lock: commit: %w", err)
	}

	return &LockHandle{ID: holder, Operation: req.Operation, Acquired: now.UTC()}, nil
}

// Unlock releases the lease acquired by handle. Fails when the lease is
// no longer held by handle's holder (expired and stolen).
func (s *SQLite) Unlock(ctx context.Context, handle *LockHandle) error {
	if handle == nil {
		return fmt.Errorf("unlock: nil handle")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM state_lock WHERE id = 1 AND holder = ?`, handle.ID)
	if err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unlock: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("unlock: lease not held by %s", handle.ID)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	// Apply migrations sequentially
	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	// Set version after all migrations
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds records.dependencies to databases created before the
// column existed. New databases get it from schema.sql. ALTER TABLE has
// no IF NOT EXISTS for columns, so probe table_info first.
func migrateToV1(db *sql.DB) error {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('records') WHERE name = 'dependencies'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec("ALTER TABLE records ADD COLUMN dependencies TEXT NOT NULL DEFAULT '[]'"); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	return nil
}

// ensureSnapshotMeta seeds the single snapshot_meta row on first open:
// serial 0, a fresh lineage UUID, and the checksum of an empty record
// set. Subsequent opens leave the row untouched.
func ensureSnapshotMeta(db *sql.DB) error {
	body, err := snapshotBody(nil)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO snapshot_meta (id, serial, lineage, checksum)
		VALUES (1, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, uuid.NewString(), attr.SnapshotChecksum(body))
	return err
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
