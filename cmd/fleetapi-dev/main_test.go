package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/store/gormstore"
	"go.uber.org/zap"
)

func TestResolveDriver(t *testing.T) {
	dir := t.TempDir()
	testCases := []struct {
		name       string
		dsn        string
		wantDriver string
		wantPath   string
	}{
		{name: "postgres", dsn: "postgres://user@localhost/fleet", wantDriver: driverPostgres},
		{name: "postgresql", dsn: "postgresql://user@localhost/fleet", wantDriver: driverPostgres},
		{name: "sqlite url", dsn: "sqlite://" + filepath.Join(dir, "a.db"), wantDriver: driverSQLite, wantPath: filepath.Join(dir, "a.db")},
		{name: "bare path", dsn: filepath.Join(dir, "b.db"), wantDriver: driverSQLite, wantPath: filepath.Join(dir, "b.db")},
		{name: "memory", dsn: ":memory:", wantDriver: driverSQLite, wantPath: ":memory:"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			driver, path, err := resolveDriver(testCase.dsn)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if driver != testCase.wantDriver || path != testCase.wantPath {
				t.Fatalf("got (%s, %s), want (%s, %s)", driver, path, testCase.wantDriver, testCase.wantPath)
			}
		})
	}
}

func TestSeedIfEmptyRunsOnce(t *testing.T) {
	ctx := context.Background()
	db, cleanup, driver, err := openDatabase(ctx, "sqlite://"+filepath.Join(t.TempDir(), "fleet.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer cleanup()
	if err := prepareSchema(db, driver); err != nil {
		t.Fatalf("schema failed: %v", err)
	}
	store := gormstore.New(db)
	for run := 0; run < 2; run++ {
		if err := seedIfEmpty(ctx, store, zap.NewNop()); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	drivers, err := store.ListDrivers(ctx, gormstore.DriverFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(drivers) != 2 {
		t.Fatalf("expected seed to run once, got %d drivers", len(drivers))
	}
}
