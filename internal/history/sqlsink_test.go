package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteSinkRecordAndRecent(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "history.db")
	sink, err := NewFromDSN(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []Event{
		{Type: EventStart, OccurredAt: time.Now().Add(-2 * time.Minute), Status: "running"},
		{Type: EventRestart, OccurredAt: time.Now().Add(-time.Minute), Status: "restarting", Detail: "Server crashed"},
		{Type: EventStop, OccurredAt: time.Now(), Status: "stopped"},
	}
	for _, e := range events {
		if err := sink.Record(ctx, e); err != nil {
			t.Fatalf("record %s: %v", e.Type, err)
		}
	}

	got, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Type != EventStop || got[2].Type != EventStart {
		t.Fatalf("order = %v, %v", got[0].Type, got[2].Type)
	}
	if got[1].Detail != "Server crashed" {
		t.Fatalf("detail = %q", got[1].Detail)
	}
}

func TestSinkReopensExistingSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	first, err := NewFromDSN(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Record(context.Background(), Event{Type: EventBackup, OccurredAt: time.Now()}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := NewFromDSN(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = second.Close() }()
	got, err := second.Recent(context.Background(), 5)
	if err != nil || len(got) != 1 || got[0].Type != EventBackup {
		t.Fatalf("got = %v err = %v", got, err)
	}
}

func TestNewFromDSNRejectsEmpty(t *testing.T) {
	if _, err := NewFromDSN("   "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
