package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sigmos-lang/sigmos/adapters/sqlite"
	"github.com/sigmos-lang/sigmos/domain/value"
	"github.com/sigmos-lang/sigmos/ports"
)

func openDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestStateStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := sqlite.NewStateStore(openDB(t))

	if _, ok, err := store.LastInputs(ctx, "greeter"); err != nil || ok {
		t.Fatalf("fresh: ok=%v err=%v", ok, err)
	}

	inputs := value.NewObject()
	inputs.Set("name", value.String("Ada"))
	inputs.Set("age", value.Number(36))
	now := time.Now().UTC().Truncate(time.Second)

	err := store.SaveExecution(ctx, ports.ExecutionRecord{
		ID: "x1", SpecName: "greeter", SpecVersion: "1.0.0",
		Status: ports.ExecutionSucceeded, Inputs: inputs,
		StartedAt: now, FinishedAt: now.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.LastInputs(ctx, "greeter")
	if err != nil || !ok {
		t.Fatalf("last: ok=%v err=%v", ok, err)
	}
	if v, _ := got.Get("age"); !v.Equal(value.Number(36)) {
		t.Errorf("age = %v", v)
	}

	err = store.SaveExecution(ctx, ports.ExecutionRecord{
		ID: "x2", SpecName: "greeter", SpecVersion: "1.0.0",
		Status: ports.ExecutionFailed, ErrorKind: "DivByZero", Inputs: inputs,
		StartedAt: now.Add(2 * time.Second), FinishedAt: now.Add(3 * time.Second),
	})
	if err != nil {
		t.Fatalf("save second: %v", err)
	}

	hist, err := store.History(ctx, "greeter", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history len = %d", len(hist))
	}
	if hist[0].ID != "x2" || hist[0].ErrorKind != "DivByZero" {
		t.Errorf("newest = %+v", hist[0])
	}
	if hist[1].Status != ports.ExecutionSucceeded {
		t.Errorf("oldest = %+v", hist[1])
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
