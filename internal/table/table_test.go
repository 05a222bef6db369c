package table

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func newTable(t *testing.T) (*Table, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "store")
	return New(Options{Dir: dir}), dir
}

func TestLazyCreation(t *testing.T) {
	tbl, dir := newTable(t)

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("directory should not exist before first use, stat err = %v", err)
	}

	if _, ok, err := tbl.Get(Key{"app", "/a.txt"}); err != nil || ok {
		t.Fatalf("Get() on empty table = ok=%v err=%v", ok, err)
	}

	if _, err := os.Stat(filepath.Join(dir, "stamps.log")); err != nil {
		t.Errorf("log file should exist after first use: %v", err)
	}
}

func TestPutGetDelete(t *testing.T) {
	tbl, _ := newTable(t)
	key := Key{Namespace: "app", Path: "/src/a.go"}

	if err := tbl.Put(key, []byte("v1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := tbl.Put(key, []byte("v2")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := tbl.Get(key)
	if err != nil || !ok {
		t.Fatalf("Get() ok=%v err=%v", ok, err)
	}
	if string(got) != "v2" {
		t.Errorf("Get() = %q, want v2", got)
	}

	if err := tbl.Delete(key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := tbl.Get(key); ok {
		t.Error("Get() after Delete() should be absent")
	}

	// Deleting again is fine
	if err := tbl.Delete(key); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestNamespacesAreIndependent(t *testing.T) {
	tbl, _ := newTable(t)

	if err := tbl.Put(Key{"main", "/a.txt"}, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := tbl.Get(Key{"test", "/a.txt"}); ok {
		t.Error("entry leaked into another namespace")
	}
}

func TestPersistenceAcrossClose(t *testing.T) {
	tbl, dir := newTable(t)

	for _, p := range []string{"/b", "/a", "/c"} {
		if err := tbl.Put(Key{"app", p}, []byte(p)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tbl.Delete(Key{"app", "/c"}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened := New(Options{Dir: dir})
	defer reopened.Close()

	paths, err := reopened.Paths("app")
	if err != nil {
		t.Fatalf("Paths() error = %v", err)
	}
	if !slices.Equal(paths, []string{"/a", "/b"}) {
		t.Errorf("Paths() = %v, want [/a /b]", paths)
	}
}

func TestReplayWithoutClose(t *testing.T) {
	tbl, dir := newTable(t)

	if err := tbl.Put(Key{"app", "/a"}, []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Put(Key{"app", "/a"}, []byte("2")); err != nil {
		t.Fatal(err)
	}
	// Simulate an aborted session: the log is read by a second table without
	// the first one compacting.
	other := New(Options{Dir: dir})
	got, ok, err := other.Get(Key{"app", "/a"})
	if err != nil || !ok {
		t.Fatalf("Get() ok=%v err=%v", ok, err)
	}
	if string(got) != "2" {
		t.Errorf("Get() = %q, want 2", got)
	}
	_ = other.Close()
	_ = tbl.Close()
}

func TestIdenticalPutAppendsNothing(t *testing.T) {
	tbl, dir := newTable(t)
	key := Key{"app", "/a"}

	if err := tbl.Put(key, []byte("same")); err != nil {
		t.Fatal(err)
	}
	info1, err := os.Stat(filepath.Join(dir, "stamps.log"))
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.Put(key, []byte("same")); err != nil {
		t.Fatal(err)
	}
	info2, err := os.Stat(filepath.Join(dir, "stamps.log"))
	if err != nil {
		t.Fatal(err)
	}
	if info1.Size() != info2.Size() {
		t.Errorf("log grew from %d to %d on identical put", info1.Size(), info2.Size())
	}
}

func TestCorruptLog(t *testing.T) {
	tests := []struct {
		name   string
		mangle func(data []byte) []byte
	}{
		{"bad magic", func(d []byte) []byte { d[0] = 'X'; return d }},
		{"bad version", func(d []byte) []byte { d[4] = 99; return d }},
		{"flipped payload byte", func(d []byte) []byte { d[len(d)-1] ^= 0xff; return d }},
		{"truncated frame", func(d []byte) []byte { return d[:len(d)-3] }},
		{"truncated header", func(d []byte) []byte { return d[:3] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, dir := newTable(t)
			if err := tbl.Put(Key{"app", "/a"}, []byte("value")); err != nil {
				t.Fatal(err)
			}
			if err := tbl.Close(); err != nil {
				t.Fatal(err)
			}

			logPath := filepath.Join(dir, "stamps.log")
			data, err := os.ReadFile(logPath)
			if err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(logPath, tt.mangle(data), 0o644); err != nil {
				t.Fatal(err)
			}

			reopened := New(Options{Dir: dir})
			_, _, err = reopened.Get(Key{"app", "/a"})
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("Get() error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestWipe(t *testing.T) {
	tbl, dir := newTable(t)

	// Safe before first use
	if err := tbl.Wipe(); err != nil {
		t.Fatalf("Wipe() on fresh table error = %v", err)
	}

	if err := tbl.Put(Key{"app", "/a"}, []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Wipe(); err != nil {
		t.Fatalf("Wipe() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("directory should be gone after Wipe(), stat err = %v", err)
	}
	if _, ok, err := tbl.Get(Key{"app", "/a"}); err != nil || ok {
		t.Errorf("Get() after Wipe() ok=%v err=%v", ok, err)
	}
	// Twice in a row is fine
	if err := tbl.Wipe(); err != nil {
		t.Errorf("second Wipe() error = %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	tbl, _ := newTable(t)
	if err := tbl.Put(Key{"app", "/a"}, []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := tbl.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, _, err := tbl.Get(Key{"app", "/a"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after Close() error = %v, want ErrClosed", err)
	}
}

func TestCloseFailsWhenDirectoryRemoved(t *testing.T) {
	tbl, dir := newTable(t)
	if err := tbl.Put(Key{"app", "/a"}, []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Close(); err == nil {
		t.Error("Close() should fail when the table directory is gone")
	}
	// Resources are released regardless
	if err := tbl.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestCloseUnopenedTableTouchesNothing(t *testing.T) {
	tbl, dir := newTable(t)
	if err := tbl.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Close() on unused table created %s", dir)
	}
}

func TestOversizedEntryIsRejected(t *testing.T) {
	tbl, dir := newTable(t)
	if err := tbl.Put(Key{"app", "/a"}, []byte("v")); err != nil {
		t.Fatal(err)
	}

	huge := Key{"app", "/" + strings.Repeat("x", maxPayload)}
	if err := tbl.Put(huge, []byte("v")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Put() error = %v, want ErrTooLarge", err)
	}
	if _, ok, _ := tbl.Get(huge); ok {
		t.Error("rejected entry should not be stored")
	}
	if err := tbl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// The log stays readable after compaction
	reopened := New(Options{Dir: dir})
	defer reopened.Close()
	if _, ok, err := reopened.Get(Key{"app", "/a"}); err != nil || !ok {
		t.Errorf("Get() after reopen ok=%v err=%v", ok, err)
	}
}

func TestLenCountsLiveEntries(t *testing.T) {
	tbl, dir := newTable(t)
	defer tbl.Close()

	if tbl.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", tbl.Dir(), dir)
	}
	for _, k := range []Key{{"main", "/a"}, {"main", "/b"}, {"test", "/a"}} {
		if err := tbl.Put(k, []byte("v")); err != nil {
			t.Fatal(err)
		}
	}
	if err := tbl.Delete(Key{"main", "/b"}); err != nil {
		t.Fatal(err)
	}
	if n, err := tbl.Len(); err != nil || n != 2 {
		t.Errorf("Len() = %d, %v, want 2", n, err)
	}
}
