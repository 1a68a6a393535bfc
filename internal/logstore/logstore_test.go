package logstore

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"
)

func setupStores(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() {
		fileStore.Close()
		sqliteStore.Close()
	})

	return map[string]Store{"file": fileStore, "sqlite": sqliteStore}
}

func sampleMeta(id string) *Meta {
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &Meta{
		ID:        id,
		Task:      "sample task",
		Status:    "running",
		StartedAt: &started,
	}
}

func TestMetaRoundTrip(t *testing.T) {
	for name, st := range setupStores(t) {
		t.Run(name, func(t *testing.T) {
			meta := sampleMeta("sess-1")
			if err := st.SaveMeta(meta); err != nil {
				t.Fatalf("SaveMeta failed: %v", err)
			}

			got, err := st.LoadMeta("sess-1")
			if err != nil {
				t.Fatalf("LoadMeta failed: %v", err)
			}
			if got.ID != "sess-1" || got.Task != "sample task" || got.Status != "running" {
				t.Errorf("unexpected meta: %+v", got)
			}
			if got.StartedAt == nil || !got.StartedAt.Equal(*meta.StartedAt) {
				t.Errorf("started_at mismatch: %v", got.StartedAt)
			}
			if got.FinishedAt != nil || got.ExitCode != nil {
				t.Errorf("expected nil optional fields, got %+v", got)
			}
		})
	}
}

func TestMetaUpdate(t *testing.T) {
	for name, st := range setupStores(t) {
		t.Run(name, func(t *testing.T) {
			meta := sampleMeta("sess-1")
			if err := st.SaveMeta(meta); err != nil {
				t.Fatalf("SaveMeta failed: %v", err)
			}

			finished := time.Date(2026, 8, 1, 12, 5, 0, 0, time.UTC)
			exit := 0
			meta.Status = "completed"
			meta.FinishedAt = &finished
			meta.ExitCode = &exit
			if err := st.SaveMeta(meta); err != nil {
				t.Fatalf("second SaveMeta failed: %v", err)
			}

			got, err := st.LoadMeta("sess-1")
			if err != nil {
				t.Fatalf("LoadMeta failed: %v", err)
			}
			if got.Status != "completed" {
				t.Errorf("expected updated status, got %q", got.Status)
			}
			if got.FinishedAt == nil || got.ExitCode == nil || *got.ExitCode != 0 {
				t.Errorf("expected finished fields, got %+v", got)
			}
		})
	}
}

func TestLoadMetaMissing(t *testing.T) {
	for name, st := range setupStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := st.LoadMeta("no-such"); err == nil {
				t.Error("expected error for missing session")
			}
		})
	}
}

func TestAppendAndReadAll(t *testing.T) {
	for name, st := range setupStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.SaveMeta(sampleMeta("sess-1")); err != nil {
				t.Fatalf("SaveMeta failed: %v", err)
			}
			lines := []string{`{"type":"system"}`, `{"type":"assistant"}`, "raw text"}
			for _, line := range lines {
				if err := st.Append("sess-1", line); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}

			got, err := st.ReadAll("sess-1")
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if !reflect.DeepEqual(got, lines) {
				t.Errorf("expected %v, got %v", lines, got)
			}
		})
	}
}

func TestChildStreamSeparate(t *testing.T) {
	for name, st := range setupStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.SaveMeta(sampleMeta("sess-1")); err != nil {
				t.Fatalf("SaveMeta failed: %v", err)
			}
			if err := st.Append("sess-1", "primary line"); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
			if err := st.AppendChild("sess-1", "tu_task", "child line"); err != nil {
				t.Fatalf("AppendChild failed: %v", err)
			}

			got, err := st.ReadAll("sess-1")
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if !reflect.DeepEqual(got, []string{"primary line"}) {
				t.Errorf("ReadAll must return only the primary stream, got %v", got)
			}
		})
	}
}

func TestList(t *testing.T) {
	for name, st := range setupStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"sess-a", "sess-b"} {
				if err := st.SaveMeta(sampleMeta(id)); err != nil {
					t.Fatalf("SaveMeta failed: %v", err)
				}
			}

			ids, err := st.List()
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			sort.Strings(ids)
			if !reflect.DeepEqual(ids, []string{"sess-a", "sess-b"}) {
				t.Errorf("expected [sess-a sess-b], got %v", ids)
			}
		})
	}
}

func TestListEmpty(t *testing.T) {
	for name, st := range setupStores(t) {
		t.Run(name, func(t *testing.T) {
			ids, err := st.List()
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(ids) != 0 {
				t.Errorf("expected no sessions, got %v", ids)
			}
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sessions")
	st, err := NewFileStore(root)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	if err := st.SaveMeta(sampleMeta("sess-1")); err != nil {
		t.Fatalf("SaveMeta failed: %v", err)
	}
	if err := st.Append("sess-1", "one"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := st.AppendChild("sess-1", "tu_x", "two"); err != nil {
		t.Fatalf("AppendChild failed: %v", err)
	}

	for _, name := range []string{"meta.json", "output.log", "child-tu_x.log"} {
		if _, err := os.Stat(filepath.Join(root, "sess-1", name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := st.SaveMeta(sampleMeta("sess-1")); err != nil {
		t.Fatalf("SaveMeta failed: %v", err)
	}
	if err := st.Append("sess-1", "persisted"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	st.Close()

	st2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer st2.Close()

	lines, err := st2.ReadAll("sess-1")
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"persisted"}) {
		t.Errorf("expected lines to survive reopen, got %v", lines)
	}
}
