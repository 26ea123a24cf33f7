package sqlstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"bridgeguard-backend/internal/bridge"
)

func TestRebindPostgres(t *testing.T) {
	got := postgresDialect.rebind("UPDATE {t}bridges SET status=?, health_index=? WHERE id=?")
	want := "UPDATE bridges SET status=$1, health_index=$2 WHERE id=$3"
	if got != want {
		t.Fatalf("unexpected query: %s", got)
	}
}

func TestRebindMySQL(t *testing.T) {
	got := mysqlDialect.rebind("SELECT id FROM {t}bridges WHERE id=?")
	if got != "SELECT id FROM bridges WHERE id=?" {
		t.Fatalf("unexpected query: %s", got)
	}
}

func TestRebindMSSQL(t *testing.T) {
	got := mssqlDialect.rebind("INSERT INTO {t}ml_outputs (id, sensor_log_id) VALUES (?,?)")
	want := "INSERT INTO dbo.ml_outputs (id, sensor_log_id) VALUES (@p1,@p2)"
	if got != want {
		t.Fatalf("unexpected query: %s", got)
	}
}

func TestDialectFor(t *testing.T) {
	cases := map[string]string{
		"postgres":   "postgres",
		"PostgreSQL": "postgres",
		"mysql":      "mysql",
		"sqlserver":  "mssql",
		" MSSQL ":    "mssql",
	}
	for in, want := range cases {
		d, err := dialectFor(in)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", in, err)
		}
		if d.name != want {
			t.Fatalf("%q: expected %s, got %s", in, want, d.name)
		}
	}
	if _, err := dialectFor("oracle"); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}

func TestPostgresDSNDefaults(t *testing.T) {
	dsn := postgresDSN(ConnectionConfig{Host: "db", User: "bridge", Password: "secret", Database: "bridges"})
	want := "host=db port=5432 user=bridge password=secret dbname=bridges sslmode=disable"
	if dsn != want {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}

func TestMySQLDSN(t *testing.T) {
	dsn := mysqlDSN(ConnectionConfig{Host: "db", User: "bridge", Password: "secret", Database: "bridges", SSLMode: "disable"})
	if !strings.HasPrefix(dsn, "bridge:secret@tcp(db:3306)/bridges?parseTime=true") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
	if !strings.Contains(dsn, "clientFoundRows=true") || !strings.HasSuffix(dsn, "&tls=false") {
		t.Fatalf("missing options: %s", dsn)
	}
	if strings.Contains(mysqlDSN(ConnectionConfig{Host: "db"}), "tls=") {
		t.Fatalf("tls should be left to the driver when ssl mode is empty")
	}
}

func TestMSSQLDSNEscapesCredentials(t *testing.T) {
	dsn := mssqlDSN(ConnectionConfig{Host: "db", User: "sa", Password: "p@ss word", Database: "bridges"})
	want := "sqlserver://sa:p%40ss+word@db:1433?database=bridges&encrypt=true"
	if dsn != want {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}

func TestOpenRequiresType(t *testing.T) {
	if _, err := Open(ConnectionConfig{}); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestOpenDoesNotDial(t *testing.T) {
	for _, kind := range []string{"postgres", "mysql", "mssql"} {
		store, err := Open(ConnectionConfig{Type: kind, Host: "127.0.0.1", User: "u", Password: "p", Database: "d"})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", kind, err)
		}
		if store.Dialect() != kind {
			t.Fatalf("%s: unexpected dialect %s", kind, store.Dialect())
		}
		_ = store.Close()
	}
}

func TestSplitStatements(t *testing.T) {
	script := `-- bridges
CREATE TABLE a (
	id INT
);

CREATE TABLE b (id INT);
INSERT INTO b VALUES (1)`
	stmts := SplitStatements(script)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %#v", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], "CREATE TABLE a (") || !strings.HasSuffix(stmts[0], ")") {
		t.Fatalf("unexpected first statement: %q", stmts[0])
	}
	if stmts[2] != "INSERT INTO b VALUES (1)" {
		t.Fatalf("unexpected trailing statement: %q", stmts[2])
	}
}

func TestSplitStatementsMigrationFiles(t *testing.T) {
	for _, dialect := range []string{"postgres", "mysql", "mssql"} {
		content, err := os.ReadFile("../../../migrations/" + dialect + "/001_init.sql")
		if err != nil {
			t.Fatalf("%s: read migration: %v", dialect, err)
		}
		stmts := SplitStatements(string(content))
		if len(stmts) < 3 {
			t.Fatalf("%s: expected at least 3 statements, got %d", dialect, len(stmts))
		}
		for _, stmt := range stmts {
			if strings.HasSuffix(stmt, ";") {
				t.Fatalf("%s: statement kept its terminator: %q", dialect, stmt)
			}
		}
	}
}

// Runs against a live server when TEST_SQL_DRIVER and TEST_SQL_DSN are set,
// e.g. TEST_SQL_DRIVER=mysql TEST_SQL_DSN="root:root@tcp(localhost:3306)/bridges?parseTime=true&clientFoundRows=true".
func TestStoreRoundTrip(t *testing.T) {
	kind := os.Getenv("TEST_SQL_DRIVER")
	dsn := os.Getenv("TEST_SQL_DSN")
	if kind == "" || dsn == "" {
		t.Skip("TEST_SQL_DRIVER or TEST_SQL_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := Open(ConnectionConfig{Type: kind, DSN: dsn})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	content, err := os.ReadFile("../../../migrations/" + store.Dialect() + "/001_init.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if err := store.ApplyMigration(ctx, string(content)); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	id := "BRIDGE-" + time.Now().Format("150405")
	if _, err := store.DB().ExecContext(ctx, store.dialect.rebind(
		`INSERT INTO {t}bridges (id, name, status, latitude, longitude) VALUES (?,?,?,?,?)`),
		id, "Test Bridge", "EXCELLENT", 44.43, 26.1); err != nil {
		t.Fatalf("seed bridge: %v", err)
	}

	if _, err := store.FindBridge(ctx, "BRIDGE-NOPE"); !errors.Is(err, bridge.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	b, err := store.FindBridge(ctx, id)
	if err != nil {
		t.Fatalf("find bridge: %v", err)
	}
	if b.Status != bridge.StatusExcellent || b.HealthIndex != nil {
		t.Fatalf("unexpected fresh bridge: %+v", b)
	}

	log, err := store.SaveSensorLog(ctx, bridge.SensorLog{BridgeID: id, StrainMicrostrain: 120, VibrationMs2: 0.3, TemperatureC: 21})
	if err != nil {
		t.Fatalf("save sensor log: %v", err)
	}
	out, err := store.SaveMLOutput(ctx, bridge.MLOutput{SensorLogID: log.ID, HealthIndex: 82, HealthState: "Good", RecommendedAction: "Routine inspection"})
	if err != nil {
		t.Fatalf("save ml output: %v", err)
	}
	if out.ID == "" || out.ID == log.ID {
		t.Fatalf("unexpected ids: %s %s", log.ID, out.ID)
	}

	b.Assess(out, time.Now().UTC())
	saved, err := store.SaveBridge(ctx, b)
	if err != nil {
		t.Fatalf("save bridge: %v", err)
	}
	if saved.Status != bridge.StatusGood || saved.HealthIndex == nil || *saved.HealthIndex != 82 {
		t.Fatalf("unexpected saved bridge: %+v", saved)
	}

	if _, err := store.SaveBridge(ctx, bridge.Bridge{ID: "BRIDGE-NOPE", Status: bridge.StatusFair}); !errors.Is(err, bridge.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}
