// Package paraid generates and tracks the short content-anchor IDs that make
// journal entries addressable independent of their position in a file.
//
// IDs are random strings over a 36-character alphabet (a–z0–9). New IDs are
// 12 characters; the legacy 6-character format is still accepted when parsing
// existing vaults. Every known ID lives in an in-memory set rehydrated at
// startup from an append-only JSONL log, one immutable record per line:
//
//	{"id":"k3f9x2m1q7z4","type":"entry","created":"2026-08-23T14:25:30Z","path":"2026-08-23.md"}
//
// Records are never updated or deleted — deleting a journal entry retires its
// ID rather than freeing it for reuse.
package paraid

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/voxlog/voxlog/internal/vaultfs"
)

// Alphabet is the set of characters IDs are drawn from.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// ID lengths. Generation always uses IDLength; LegacyIDLength is accepted
// when parsing. The format is auto-detected by length.
const (
	IDLength       = 12
	LegacyIDLength = 6
)

// maxGenerateAttempts bounds collision re-draws. At 36^12 possible IDs,
// hitting this limit means the log itself is corrupt or astronomically large.
const maxGenerateAttempts = 100

// ErrIDExhausted is returned when Generate fails to find an unused ID within
// the retry budget.
var ErrIDExhausted = errors.New("paraid: exhausted ID generation retries")

// EntryType classifies what an ID anchors.
type EntryType string

const (
	TypeEntry   EntryType = "entry"
	TypeMessage EntryType = "message"
	TypeAsset   EntryType = "asset"
	TypeSession EntryType = "session"
)

// Entry is one immutable registry record.
type Entry struct {
	ID      string    `json:"id"`
	Type    EntryType `json:"type"`
	Created time.Time `json:"created"`
	Path    string    `json:"path,omitempty"`
}

// Valid reports whether id has a recognized ID shape: 12 characters (current)
// or 6 (legacy), all from the alphabet.
func Valid(id string) bool {
	if len(id) != IDLength && len(id) != LegacyIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Registry owns the ID set for one vault. Mutation is serialized by a single
// mutex; existence checks may run concurrently with each other.
type Registry struct {
	fs      vaultfs.FS
	logPath string

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates a registry backed by the JSONL log at logPath. Call
// Initialize before first use.
func NewRegistry(vfs vaultfs.FS, logPath string) *Registry {
	return &Registry{
		fs:      vfs,
		logPath: logPath,
		entries: make(map[string]Entry),
	}
}

// Initialize rehydrates the in-memory set from the log. A missing log file
// is a fresh vault, not an error. Unparseable lines are skipped with a
// warning so one corrupt record cannot brick the vault.
func (r *Registry) Initialize() error {
	data, err := r.fs.ReadFile(r.logPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("paraid: read log %q: %w", r.logPath, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			slog.Warn("paraid: skipping unparseable log record", "line", line, "error", err)
			continue
		}
		if !Valid(e.ID) {
			slog.Warn("paraid: skipping record with malformed id", "line", line, "id", e.ID)
			continue
		}
		r.entries[e.ID] = e
	}
	return scanner.Err()
}

// Generate draws a fresh 12-character ID, persists its record durably, and
// returns it. On a collision with a known ID it re-draws, up to the retry
// budget ([ErrIDExhausted] past that). If the log append fails the ID is not
// recorded in memory either — an ID only exists once it is durable.
func (r *Registry) Generate(t EntryType, path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	found := false
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		candidate, err := randomID(IDLength)
		if err != nil {
			return "", fmt.Errorf("paraid: draw random id: %w", err)
		}
		if _, taken := r.entries[candidate]; !taken {
			id = candidate
			found = true
			break
		}
	}
	if !found {
		return "", ErrIDExhausted
	}

	e := Entry{ID: id, Type: t, Created: time.Now().UTC(), Path: path}
	if err := r.appendLocked(e); err != nil {
		return "", err
	}
	r.entries[id] = e
	return id, nil
}

// Register records an ID discovered while parsing existing content. Returns
// false without error when the ID is already known. Malformed IDs are
// rejected so garbage in a journal header cannot pollute the registry.
func (r *Registry) Register(id string, t EntryType, path string) (bool, error) {
	if !Valid(id) {
		return false, fmt.Errorf("paraid: malformed id %q", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.entries[id]; known {
		return false, nil
	}

	e := Entry{ID: id, Type: t, Created: time.Now().UTC(), Path: path}
	if err := r.appendLocked(e); err != nil {
		return false, err
	}
	r.entries[id] = e
	return true, nil
}

// Exists reports whether id is known to this registry.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// GetEntry returns the record for id.
func (r *Registry) GetEntry(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Len returns the number of known IDs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// appendLocked persists one record. Callers hold r.mu.
func (r *Registry) appendLocked(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("paraid: marshal record: %w", err)
	}
	line = append(line, '\n')
	if err := r.fs.AppendFile(r.logPath, line); err != nil {
		return fmt.Errorf("paraid: persist record for %q: %w", e.ID, err)
	}
	return nil
}

// randomID draws n characters uniformly from the alphabet using crypto/rand,
// with rejection sampling to avoid modulo bias.
func randomID(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			// 252 is the largest multiple of 36 below 256.
			if b >= 252 {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
