package db

import (
	"testing"
	"testing/fstest"
	"time"
)

func migrationFS() fstest.MapFS {
	return fstest.MapFS{
		"002_webhooks.sql":     {Data: []byte("CREATE TABLE webhook_endpoint (id UUID);")},
		"001_transactions.sql": {Data: []byte("CREATE TABLE conversion_transaction (id UUID);")},
		"010_indexes.sql":      {Data: []byte("CREATE INDEX x ON conversion_transaction (id);")},
		"README.md":            {Data: []byte("notes")},
		"draft.sql":            {Data: []byte("SELECT 1;")},
		"abc_bad.sql":          {Data: []byte("SELECT 1;")},
		"sub/003_nested.sql":   {Data: []byte("SELECT 1;")},
	}
}

func TestLoadMigrations_SortedAndFiltered(t *testing.T) {
	migrations, err := NewMigrator(nil, migrationFS()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_transactions.sql" {
		t.Errorf("expected 001_transactions.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE conversion_transaction (id UUID);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migrations))
	}
}

func TestPendingAndStatus(t *testing.T) {
	migrations, err := NewMigrator(nil, migrationFS()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	applied := map[int]time.Time{1: at}

	pending := Pending(migrations, applied)
	if len(pending) != 2 || pending[0].Version != 2 || pending[1].Version != 10 {
		t.Errorf("expected versions 2 and 10 pending, got %v", pending)
	}

	statuses := BuildStatus(migrations, applied)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("expected migration 1 applied at %v, got %+v", at, statuses[0])
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Errorf("expected migration 2 pending, got %+v", statuses[1])
	}
}
