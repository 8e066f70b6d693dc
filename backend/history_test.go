package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestOpenHistory_CreatesDatabase(t *testing.T) {
	h := openTestHistory(t)
	if _, err := os.Stat(h.Path()); err != nil {
		t.Errorf("database file missing: %v", err)
	}
}

func TestHistory_AddAndQuery(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []HistoryEntry{
		{URL: "https://example.com/1", Kind: KindAudio, Title: "First Song", Artist: "Alpha", Album: "One", Status: HistoryComplete, FileSize: 100, CompletedAt: base},
		{URL: "https://example.com/2", Kind: KindVideo, Variant: VariantDevice, Title: "Clip", Artist: "Beta", Status: HistoryError, ErrorKind: KindDownloadFailed, Error: "download failed", CompletedAt: base.Add(time.Minute)},
		{URL: "https://example.com/3", Kind: KindAudio, Title: "Third", Artist: "Alpha", Status: HistoryCancelled, ErrorKind: KindCancelled, CompletedAt: base.Add(2 * time.Minute)},
	}
	var ids []string
	for _, e := range entries {
		added, err := h.Add(ctx, e)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if added.ID == "" {
			t.Fatal("Add did not assign an id")
		}
		ids = append(ids, added.ID)
	}

	all, err := h.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 3 || all[0].Title != "Third" || all[2].Title != "First Song" {
		t.Fatalf("GetAll order = %+v", all)
	}
	if all[1].Variant != VariantDevice || all[1].ErrorKind != KindDownloadFailed {
		t.Errorf("round-tripped entry = %+v", all[1])
	}
	if !all[2].CompletedAt.Equal(base) {
		t.Errorf("CompletedAt = %v, want %v", all[2].CompletedAt, base)
	}

	recent, err := h.GetRecent(ctx, 2)
	if err != nil || len(recent) != 2 {
		t.Errorf("GetRecent(2) = %d entries, err %v", len(recent), err)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"alpha", 2},
		{"CLIP", 1},
		{"example.com/3", 1},
		{"nothing", 0},
		{"  ", 3},
	}
	for _, tt := range tests {
		got, err := h.Search(ctx, tt.query)
		if err != nil {
			t.Fatalf("Search(%q): %v", tt.query, err)
		}
		if len(got) != tt.want {
			t.Errorf("Search(%q) = %d entries, want %d", tt.query, len(got), tt.want)
		}
	}

	e, err := h.GetByID(ctx, ids[0])
	if err != nil || e.Album != "One" {
		t.Errorf("GetByID = %+v, %v", e, err)
	}

	stats, err := h.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	want := HistoryStats{Total: 3, Completed: 1, Failed: 1, Cancelled: 1, TotalSize: 100}
	if stats != want {
		t.Errorf("GetStats = %+v, want %+v", stats, want)
	}
}

func TestHistory_DeleteAndClear(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	a, _ := h.Add(ctx, HistoryEntry{URL: "https://example.com/a", Kind: KindAudio, Status: HistoryComplete})
	if _, err := h.Add(ctx, HistoryEntry{URL: "https://example.com/b", Kind: KindAudio, Status: HistoryComplete}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := h.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := h.GetByID(ctx, a.ID); !errors.Is(err, ErrHistoryNotFound) {
		t.Errorf("GetByID after delete = %v, want not found", err)
	}
	if err := h.Delete(ctx, a.ID); !errors.Is(err, ErrHistoryNotFound) {
		t.Errorf("second Delete = %v, want not found", err)
	}

	if err := h.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	all, err := h.GetAll(ctx)
	if err != nil || len(all) != 0 {
		t.Errorf("after Clear: %d entries, err %v", len(all), err)
	}
}

func TestHistory_PersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	h, err := OpenHistory(dir)
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	if _, err := h.Add(ctx, HistoryEntry{URL: "https://example.com/a", Kind: KindAudio, Title: "Kept", Status: HistoryComplete}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenHistory(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	all, err := reopened.GetAll(ctx)
	if err != nil || len(all) != 1 || all[0].Title != "Kept" {
		t.Errorf("after reopen = %+v, err %v", all, err)
	}
}
