package state

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func openTestBackend(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path)
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("final OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"records", "snapshot_meta", "state_lock"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/state.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpenSQLite_LineageStableAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s1, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("first OpenSQLite() failed: %v", err)
	}
	snap1, err := s1.ReadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("ReadSnapshot() failed: %v", err)
	}
	s1.Close()

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("second OpenSQLite() failed: %v", err)
	}
	defer s2.Close()
	snap2, err := s2.ReadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("ReadSnapshot() failed: %v", err)
	}

	if snap1.Lineage == "" {
		t.Error("lineage is empty")
	}
	if snap1.Lineage != snap2.Lineage {
		t.Errorf("lineage changed across opens: %q vs %q", snap1.Lineage, snap2.Lineage)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &SQLite{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := openTestBackend(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := openTestBackend(t)
	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := openTestBackend(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_ForeignKeys(t *testing.T) {
	s := openTestBackend(t)
	// ON = 1
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

// Schema tests

func TestSchema_RecordsTable(t *testing.T) {
	s := openTestBackend(t)

	columns := getTableColumns(t, s.db, "records")

	expected := []string{
		"name", "type", "identity", "inputs", "outputs",
		"inputs_hash", "protect", "dependencies", "seq",
	}

	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("records table missing column %q", col)
		}
	}
}

func TestSchema_RecordsIndexes(t *testing.T) {
	s := openTestBackend(t)

	indexes := getTableIndexes(t, s.db, "records")

	expected := []string{
		"idx_records_type",
		"idx_records_seq",
	}

	for _, idx := range expected {
		if !contains(indexes, idx) {
			t.Errorf("records table missing index %q", idx)
		}
	}
}

func TestSchema_SnapshotMetaSeeded(t *testing.T) {
	s := openTestBackend(t)

	var serial int64
	var lineage, checksum string
	err := s.db.QueryRow("SELECT serial, lineage, checksum FROM snapshot_meta WHERE id = 1").
		Scan(&serial, &lineage, &checksum)
	if err != nil {
		t.Fatalf("snapshot_meta row not seeded: %v", err)
	}

	if serial != 0 {
		t.Errorf("initial serial = %d, want 0", serial)
	}
	if lineage == "" {
		t.Error("initial lineage is empty")
	}
	if checksum == "" {
		t.Error("initial checksum is empty")
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := openTestBackend(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}

	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_IdempotentUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path)
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}

		var version int
		if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			t.Fatalf("failed to get user_version: %v", err)
		}
		if version != currentSchemaVersion {
			t.Errorf("iteration %d: user_version = %d, want %d", i, version, currentSchemaVersion)
		}

		s.Close()
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	// Simulate a database created before records.dependencies existed.
	path := filepath.Join(t.TempDir(), "state.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE records (
			name        TEXT PRIMARY KEY,
			type        TEXT NOT NULL,
			identity    TEXT NOT NULL,
			inputs      TEXT NOT NULL,
			outputs     TEXT NOT NULL,
			inputs_hash TEXT NOT NULL,
			protect     INTEGER NOT NULL DEFAULT 0,
			seq         INTEGER NOT NULL
		)
	`)
	if err != nil {
		t.Fatalf("failed to create v0 records table: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	db.Close()

	// Opening through the normal path must add the column.
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", version, currentSchemaVersion)
	}

	columns := getTableColumns(t, s.db, "records")
	if !contains(columns, "dependencies") {
		t.Errorf("records table missing dependencies column after migration, columns: %v", columns)
	}
}

// Open dispatcher tests

func TestOpen_BarePathIsSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%q) failed: %v", path, err)
	}
	defer b.Close()

	if _, ok := b.(*SQLite); !ok {
		t.Errorf("Open(%q) = %T, want *SQLite", path, b)
	}
}

func TestOpen_SQLiteScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	b, err := Open("sqlite://" + path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer b.Close()

	if _, ok := b.(*SQLite); !ok {
		t.Errorf("Open() = %T, want *SQLite", b)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created at stripped path")
	}
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open("mysql://localhost/state")
	if err == nil {
		t.Error("expected error for unsupported scheme, got nil")
	}
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
