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
	_ "github.com/lib/pq"

	"github.com/groundworklabs/groundwork/internal/attr"
)

//go:embed schema_postgres.sql
var schemaPostgresSQL string

const (
	// COLLATE "C" forces byte ordering regardless of the server locale,
	// matching the SQLite COLLATE BINARY ordering.
	selectRecordsPostgres = `
		SELECT name, type, identity, inputs, outputs, inputs_hash, protect, dependencies, seq
		FROM records
		ORDER BY name COLLATE "C" ASC`
	updateMetaPostgres = `UPDATE snapshot_meta SET serial = $1, checksum = $2 WHERE id = 1`
)

// Postgres is a Backend on a shared PostgreSQL server, for state shared
// across operators. Same contract as SQLite; the lock row is guarded
// with SELECT ... FOR UPDATE so concurrent acquisitions serialize on
// the server.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

var _ Backend = (*Postgres)(nil)

// OpenPostgres connects to a PostgreSQL state database and applies the
// schema. The DDL is idempotent, so concurrent first opens are safe.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to state database: %w", err)
	}

	if _, err := db.Exec(schemaPostgresSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	body, err := snapshotBody(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot metadata: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO snapshot_meta (id, serial, lineage, checksum)
		VALUES (1, 0, $1, $2)
		ON CONFLICT (id) DO NOTHING
	`, uuid.NewString(), attr.SnapshotChecksum(body))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot metadata: %w", err)
	}

	return &Postgres{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Get returns the record for a logical name.
func (p *Postgres) Get(ctx context.Context, name string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT name, type, identity, inputs, outputs, inputs_hash, protect, dependencies, seq
		FROM records
		WHERE name = $1
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
func (p *Postgres) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Name == "" {
		return fmt.Errorf("put record: name required")
	}

	inputsJSON, outputsJSON, depsJSON, err := marshalRecord(rec)
	if err != nil {
		return fmt.Errorf("put record %q: %w", rec.Name, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put record %q: begin tx: %w", rec.Name, err)
	}
	defer tx.Rollback()

	var serial int64
	if err := tx.QueryRowContext(ctx, `SELECT serial FROM snapshot_meta WHERE id = 1 FOR UPDATE`).Scan(&serial); err != nil {
		return fmt.Errorf("put record %q: read serial: %w", rec.Name, err)
	}
	serial++

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records
		(name, type, identity, inputs, outputs, inputs_hash, protect, dependencies, seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name) DO UPDATE SET
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

	if err := refreshMeta(ctx, tx, serial, selectRecordsPostgres, updateMetaPostgres); err != nil {
		return fmt.Errorf("put record %q: %w", rec.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put record %q: commit: %w", rec.Name, err)
	}

	rec.Seq = serial
	return nil
}

// Delete removes a record. Deleting an absent record is a no-op.
func (p *Postgres) Delete(ctx context.Context, name string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete record %q: begin tx: %w", name, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE name = $1`, name)
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
	if err := tx.QueryRowContext(ctx, `SELECT serial FROM snapshot_meta WHERE id = 1 FOR UPDATE`).Scan(&serial); err != nil {
		return fmt.Errorf("delete record %q: read serial: %w", name, err)
	}
	serial++

	if err := refreshMeta(ctx, tx, serial, selectRecordsPostgres, updateMetaPostgres); err != nil {
		return fmt.Errorf("delete record %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete record %q: commit: %w", name, err)
	}
	return nil
}

// List returns all records ordered by name.
func (p *Postgres) List(ctx context.Context) ([]Record, error) {
	return queryRecords(ctx, p.db, selectRecordsPostgres)
}

// ReadSnapshot returns the full state with a verified checksum.
func (p *Postgres) ReadSnapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := p.db.BeginTx(ctx, nil)
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

	records, err := queryRecords(ctx, tx, selectRecordsPostgres)
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

// WriteSnapshot replaces the full record set under optimistic
// concurrency on the serial. See SQLite.WriteSnapshot for semantics.
func (p *Postgres) WriteSnapshot(ctx context.Context, snap *Snapshot) error {
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

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write snapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	var serial int64
	var lineage string
	if err := tx.QueryRowContext(ctx, `SELECT serial, lineage FROM snapshot_meta WHERE id = 1 FOR UPDATE`).
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
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
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
	if _, err := tx.ExecContext(ctx, updateMetaPostgres, serial, checksum); err != nil {
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

// Lock acquires the exclusive reconciliation lease. FOR UPDATE on the
// lock row serializes concurrent acquisitions server-side.
func (p *Postgres) Lock(ctx context.Context, req LockRequest) (*LockHandle, error) {
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
	now := p.now()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("lock: begin tx: %w", err)
	}
	defer tx.Rollback()

	var curHolder, curOp string
	var curAcquired, curExpires int64
	err = tx.QueryRowContext(ctx, `
		SELECT holder, operation, acquired, expires
		FROM state_lock
		WHERE id = 1
		FOR UPDATE
	`).Scan(&curHolder, &curOp, &curAcquired, &curExpires)
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
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
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

// Unlock releases the lease acquired by handle.
func (p *Postgres) Unlock(ctx context.Context, handle *LockHandle) error {
	if handle == nil {
		return fmt.Errorf("unlock: nil handle")
	}
	res, err := p.db.ExecContext(ctx, `DELETE FROM state_lock WHERE id = 1 AND holder = $1`, handle.ID)
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
