package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "mining.json")
}

func transition(crID int64, bad, good string) Transition {
	return Transition{
		ChangeReqID: crID,
		BadSHA:      bad,
		GoodSHA:     good,
		MinedAt:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestOpen_MissingFile(t *testing.T) {
	st, err := Open(tempStorePath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(st.All()) != 0 {
		t.Fatalf("expected empty store, got %d transitions", len(st.All()))
	}
	if st.LastProcessedID() != 0 {
		t.Fatalf("expected cursor 0, got %d", st.LastProcessedID())
	}
}

func TestAppendAndReload(t *testing.T) {
	path := tempStorePath(t)
	st, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	n, err := st.Append([]Transition{
		transition(1, "aaa", "bbb"),
		transition(1, "ccc", "ddd"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("appended %d, want 2", n)
	}
	if err := st.AdvanceCursor(1); err != nil {
		t.Fatal(err)
	}

	// Everything must survive a reopen.
	st2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(st2.All()) != 2 {
		t.Fatalf("expected 2 transitions after reload, got %d", len(st2.All()))
	}
	if st2.LastProcessedID() != 1 {
		t.Fatalf("cursor = %d after reload, want 1", st2.LastProcessedID())
	}
	tr := transition(1, "aaa", "bbb")
	if !st2.Seen(tr.Key()) {
		t.Fatal("emitted key lost across reload")
	}
}

func TestAppendSkipsSeen(t *testing.T) {
	st, err := Open(tempStorePath(t))
	if err != nil {
		t.Fatal(err)
	}

	tr := transition(5, "aaa", "bbb")
	if _, err := st.Append([]Transition{tr}); err != nil {
		t.Fatal(err)
	}
	n, err := st.Append([]Transition{tr, transition(5, "eee", "fff")})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("re-append recorded %d, want 1 (duplicate skipped)", n)
	}
	if len(st.All()) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(st.All()))
	}
}

func TestAdvanceCursorIsMonotonic(t *testing.T) {
	st, err := Open(tempStorePath(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := st.AdvanceCursor(10); err != nil {
		t.Fatal(err)
	}
	if err := st.AdvanceCursor(3); err != nil {
		t.Fatal(err)
	}
	if got := st.LastProcessedID(); got != 10 {
		t.Fatalf("cursor = %d, want 10 (never moves backward)", got)
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	path := tempStorePath(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestSetCategoryAndMarkUnverifiable(t *testing.T) {
	path := tempStorePath(t)
	st, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	tr := transition(2, "aaa", "bbb")
	if _, err := st.Append([]Transition{tr}); err != nil {
		t.Fatal(err)
	}

	if err := st.SetCategory(tr.Key(), "dependency_update"); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkUnverifiable(tr.Key()); err != nil {
		t.Fatal(err)
	}
	if err := st.SetCategory("9:zzz:yyy", "other"); err == nil {
		t.Fatal("expected error for unknown key")
	}

	st2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := st2.Get(tr.Key())
	if !ok {
		t.Fatal("transition lost")
	}
	if got.Category != "dependency_update" || !got.Unverifiable {
		t.Fatalf("bookkeeping not persisted: %+v", got)
	}

	counts := st2.Stats()
	if counts.Transitions != 1 || counts.Unverifiable != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestKeyFormat(t *testing.T) {
	tr := transition(1913, "149a345deadbeef", "f00dcafe0123456")
	want := "1913:149a345deadbeef:f00dcafe0123456"
	if tr.Key() != want {
		t.Fatalf("Key() = %q, want %q", tr.Key(), want)
	}
}
