package paraid_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/voxlog/voxlog/internal/paraid"
	"github.com/voxlog/voxlog/internal/vaultfs"
)

const logPath = "ids.jsonl"

func newRegistry(t *testing.T) (*paraid.Registry, *vaultfs.OS) {
	t.Helper()
	v := vaultfs.NewOS(t.TempDir())
	r := paraid.NewRegistry(v, logPath)
	if err := r.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return r, v
}

func TestGenerate_UniqueAndRediscoverable(t *testing.T) {
	r, v := newRegistry(t)

	const n = 200
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		id, err := r.Generate(paraid.TypeEntry, "2026-08-23.md")
		if err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
		if len(id) != paraid.IDLength {
			t.Fatalf("id %q has length %d, want %d", id, len(id), paraid.IDLength)
		}
		if !paraid.Valid(id) {
			t.Fatalf("generated invalid id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}

	// Reload from the log; every ID must be rediscoverable.
	reloaded := paraid.NewRegistry(v, logPath)
	if err := reloaded.Initialize(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Len() != n {
		t.Fatalf("reloaded %d ids, want %d", reloaded.Len(), n)
	}
	for id := range seen {
		if !reloaded.Exists(id) {
			t.Errorf("id %q lost on reload", id)
		}
		e, ok := reloaded.GetEntry(id)
		if !ok || e.Type != paraid.TypeEntry || e.Path != "2026-08-23.md" {
			t.Errorf("entry for %q not restored: %+v", id, e)
		}
	}
}

func TestRegister_IdempotentAndLegacyLength(t *testing.T) {
	r, _ := newRegistry(t)

	fresh, err := r.Register("abc123", paraid.TypeEntry, "old.md")
	if err != nil {
		t.Fatalf("register legacy id: %v", err)
	}
	if !fresh {
		t.Error("first registration should report true")
	}

	again, err := r.Register("abc123", paraid.TypeEntry, "old.md")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if again {
		t.Error("second registration should report false")
	}
}

func TestRegister_RejectsMalformedID(t *testing.T) {
	r, _ := newRegistry(t)

	for _, id := range []string{"", "short", "UPPERCASE1!!", "toolongtobeanidatall", "abc_12"} {
		if _, err := r.Register(id, paraid.TypeEntry, ""); err == nil {
			t.Errorf("expected error for malformed id %q", id)
		}
	}
}

// failingFS wraps a real FS but fails every append, to verify the rollback
// guarantee: an ID whose record was not durably persisted must not exist.
type failingFS struct {
	vaultfs.FS
}

var errDiskFull = errors.New("disk full")

func (f failingFS) AppendFile(path string, data []byte) error {
	return errDiskFull
}

func TestGenerate_RollsBackOnWriteFailure(t *testing.T) {
	v := vaultfs.NewOS(t.TempDir())
	r := paraid.NewRegistry(failingFS{FS: v}, logPath)
	if err := r.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	_, err := r.Generate(paraid.TypeEntry, "")
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected disk full error, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("failed generate must not leave an id in memory, have %d", r.Len())
	}
}

func TestInitialize_SkipsCorruptLines(t *testing.T) {
	v := vaultfs.NewOS(t.TempDir())
	log := strings.Join([]string{
		`{"id":"k3f9x2m1q7z4","type":"entry","created":"2026-08-23T14:25:30Z"}`,
		`not json at all`,
		`{"id":"NOT-VALID","type":"entry","created":"2026-08-23T14:25:30Z"}`,
		`{"id":"abc123","type":"asset","created":"2024-01-02T03:04:05Z","path":"assets/x.wav"}`,
	}, "\n") + "\n"
	if err := v.WriteFile(logPath, []byte(log)); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	r := paraid.NewRegistry(v, logPath)
	if err := r.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 surviving records, got %d", r.Len())
	}
	if !r.Exists("k3f9x2m1q7z4") || !r.Exists("abc123") {
		t.Error("valid records should survive corrupt neighbours")
	}
}

func TestInitialize_MissingLogIsFreshVault(t *testing.T) {
	v := vaultfs.NewOS(t.TempDir())
	r := paraid.NewRegistry(v, logPath)
	if err := r.Initialize(); err != nil {
		t.Fatalf("missing log should not error: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("fresh vault should have no ids, got %d", r.Len())
	}
}
