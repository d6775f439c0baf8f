package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/streamnote/streamnote/internal/session"
	"github.com/streamnote/streamnote/internal/transcript"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestSQLitePragmas(t *testing.T) {
	store := newTestSQLiteStore(t)

	var mode string
	if err := store.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode failed: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected journal_mode wal, got %q", mode)
	}

	var timeout int
	if err := store.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("PRAGMA busy_timeout failed: %v", err)
	}
	if timeout < 5000 {
		t.Fatalf("expected busy_timeout >= 5000, got %d", timeout)
	}
}

func TestArchiveAndReadBack(t *testing.T) {
	store := newTestSQLiteStore(t)

	startedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	endedAt := startedAt.Add(12 * time.Minute)

	segments := []transcript.Segment{
		{Index: 0, Text: "Welcome everyone.", Speaker: "Host", Final: true, Timestamp: startedAt.Add(5 * time.Second)},
		{Index: 1, Text: "Thanks for having me.", Speaker: "Guest", Final: true, Timestamp: startedAt.Add(9 * time.Second)},
	}
	summaries := []session.Summary{
		{Text: "Introductions.", Timestamp: startedAt.Add(30 * time.Second), RangeStart: 0, RangeEnd: 1},
	}

	if err := store.ArchiveSession("sess-1", startedAt, endedAt, segments, summaries); err != nil {
		t.Fatalf("ArchiveSession failed: %v", err)
	}

	sess, err := store.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !sess.StartedAt.Equal(startedAt) {
		t.Fatalf("expected started_at %v, got %v", startedAt, sess.StartedAt)
	}
	if sess.EndedAt == nil || !sess.EndedAt.Equal(endedAt) {
		t.Fatalf("expected ended_at %v, got %v", endedAt, sess.EndedAt)
	}
	if sess.Segments != 2 || sess.Summaries != 1 {
		t.Fatalf("expected counts 2/1, got %d/%d", sess.Segments, sess.Summaries)
	}

	gotSegs, err := store.GetSegments("sess-1")
	if err != nil {
		t.Fatalf("GetSegments failed: %v", err)
	}
	if len(gotSegs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(gotSegs))
	}
	if gotSegs[0].Index != 0 || gotSegs[0].Text != "Welcome everyone." || gotSegs[0].Speaker != "Host" {
		t.Fatalf("unexpected first segment: %+v", gotSegs[0])
	}
	if !gotSegs[1].Final {
		t.Fatal("archived segments should read back as final")
	}

	gotSums, err := store.GetSummaries("sess-1")
	if err != nil {
		t.Fatalf("GetSummaries failed: %v", err)
	}
	if len(gotSums) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(gotSums))
	}
	if gotSums[0].RangeStart != 0 || gotSums[0].RangeEnd != 1 {
		t.Fatalf("unexpected summary range: %+v", gotSums[0])
	}
}

func TestArchiveIsIdempotent(t *testing.T) {
	store := newTestSQLiteStore(t)

	startedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	segs := []transcript.Segment{{Index: 0, Text: "hello", Speaker: "Speaker", Final: true, Timestamp: startedAt}}

	if err := store.ArchiveSession("sess-1", startedAt, startedAt.Add(time.Minute), segs, nil); err != nil {
		t.Fatalf("first archive failed: %v", err)
	}
	if err := store.ArchiveSession("sess-1", startedAt, startedAt.Add(2*time.Minute), segs, nil); err != nil {
		t.Fatalf("second archive failed: %v", err)
	}

	gotSegs, err := store.GetSegments("sess-1")
	if err != nil {
		t.Fatalf("GetSegments failed: %v", err)
	}
	if len(gotSegs) != 1 {
		t.Fatalf("expected 1 segment after re-archive, got %d", len(gotSegs))
	}
}

func TestArchiveRejectsEmptyID(t *testing.T) {
	store := newTestSQLiteStore(t)

	if err := store.ArchiveSession("  ", time.Now(), time.Now(), nil, nil); err == nil {
		t.Fatal("expected error for blank session id")
	}
}

func TestGetSessionsByDate(t *testing.T) {
	store := newTestSQLiteStore(t)

	day1 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	if err := store.ArchiveSession("a", day1, day1.Add(time.Minute), nil, nil); err != nil {
		t.Fatalf("archive a failed: %v", err)
	}
	if err := store.ArchiveSession("b", day2, day2.Add(time.Minute), nil, nil); err != nil {
		t.Fatalf("archive b failed: %v", err)
	}

	sessions, err := store.GetSessionsByDate("2026-03-14")
	if err != nil {
		t.Fatalf("GetSessionsByDate failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "a" {
		t.Fatalf("expected only session a, got %+v", sessions)
	}

	dates, err := store.GetDates()
	if err != nil {
		t.Fatalf("GetDates failed: %v", err)
	}
	if len(dates) != 2 || dates[0] != "2026-03-15" || dates[1] != "2026-03-14" {
		t.Fatalf("unexpected dates: %v", dates)
	}
}
