// Package mcpserver exposes the journal to agent tooling over the Model
// Context Protocol. It runs as a stdio server so editors and assistants can
// load a day, append entries, flip transcription status, and resolve
// para-IDs without touching the vault files directly.
//
// All mutations go through the journal store's surgical operations; the MCP
// surface never rewrites a day file wholesale.
package mcpserver

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voxlog/voxlog/internal/journal"
	"github.com/voxlog/voxlog/internal/paraid"
)

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithLogger overrides the logger. Default slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// Server wires journal tools into an MCP server.
type Server struct {
	store *journal.Store
	reg   *paraid.Registry
	log   *slog.Logger
	srv   *mcp.Server
}

// New creates a server exposing the journal store and para-ID registry.
func New(store *journal.Store, reg *paraid.Registry, opts ...Option) *Server {
	s := &Server{store: store, reg: reg, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	s.srv = mcp.NewServer(&mcp.Implementation{Name: "voxlog", Version: "1.0.0"}, nil)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "journal_load",
		Description: "Load one day of the journal: all entries with their metadata.",
	}, s.journalLoad)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "journal_append",
		Description: "Append a new entry to a day. Returns the generated para-ID.",
	}, s.journalAppend)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "journal_update_status",
		Description: "Update the transcription status of a voice entry.",
	}, s.journalUpdateStatus)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "paraid_lookup",
		Description: "Resolve a para-ID to its type, creation time, and file path.",
	}, s.paraidLookup)
	return s
}

// Run serves MCP over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcpserver: serving over stdio")
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}

// Connect attaches the server to a transport. Used by tests and by hosts that
// manage their own transport lifecycle.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.srv.Connect(ctx, t, nil)
}

// entryView is the JSON shape of one entry in tool results.
type entryView struct {
	ID              string `json:"id"`
	Title           string `json:"title,omitempty"`
	Content         string `json:"content,omitempty"`
	Kind            string `json:"kind"`
	CreatedAt       string `json:"createdAt,omitempty"`
	AudioPath       string `json:"audioPath,omitempty"`
	ImagePath       string `json:"imagePath,omitempty"`
	LinkedFilePath  string `json:"linkedFilePath,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	Pending         bool   `json:"pendingTranscription,omitempty"`
}

func toView(e journal.Entry) entryView {
	v := entryView{
		ID:              e.ID,
		Title:           e.Title,
		Content:         e.Content,
		Kind:            string(e.Kind),
		AudioPath:       e.AudioPath,
		ImagePath:       e.ImagePath,
		LinkedFilePath:  e.LinkedFilePath,
		DurationSeconds: e.DurationSeconds,
		Pending:         e.IsPendingTranscription,
	}
	if !e.CreatedAt.IsZero() {
		v.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	return v
}

type loadArgs struct {
	Date string `json:"date" jsonschema:"day to load, formatted YYYY-MM-DD"`
}

type loadResult struct {
	Date    string      `json:"date"`
	Path    string      `json:"path"`
	Entries []entryView `json:"entries"`
}

func (s *Server) journalLoad(_ context.Context, _ *mcp.CallToolRequest, args loadArgs) (*mcp.CallToolResult, loadResult, error) {
	date, err := parseDate(args.Date)
	if err != nil {
		return nil, loadResult{}, err
	}
	day, err := s.store.Load(date)
	if err != nil {
		return nil, loadResult{}, err
	}

	out := loadResult{
		Date:    journal.DateKey(date),
		Path:    day.FilePath,
		Entries: make([]entryView, 0, len(day.Entries)),
	}
	for _, e := range day.Entries {
		out.Entries = append(out.Entries, toView(e))
	}
	return nil, out, nil
}

type appendArgs struct {
	Date            string `json:"date" jsonschema:"day to append to, formatted YYYY-MM-DD"`
	Title           string `json:"title,omitempty" jsonschema:"optional entry title"`
	Content         string `json:"content" jsonschema:"markdown body of the entry"`
	Kind            string `json:"kind,omitempty" jsonschema:"entry kind: text, voice, linked, photo, or handwriting; default text"`
	AudioPath       string `json:"audioPath,omitempty" jsonschema:"vault-relative audio asset path, voice entries only"`
	ImagePath       string `json:"imagePath,omitempty" jsonschema:"vault-relative image asset path"`
	LinkedFilePath  string `json:"linkedFilePath,omitempty" jsonschema:"vault-relative linked file path"`
	DurationSeconds int    `json:"durationSeconds,omitempty" jsonschema:"audio length in seconds, voice entries only"`
}

type appendResult struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

func (s *Server) journalAppend(_ context.Context, _ *mcp.CallToolRequest, args appendArgs) (*mcp.CallToolResult, appendResult, error) {
	date, err := parseDate(args.Date)
	if err != nil {
		return nil, appendResult{}, err
	}
	kind, err := parseKind(args.Kind)
	if err != nil {
		return nil, appendResult{}, err
	}

	entry, err := s.store.Append(date, journal.NewEntry{
		Title:           args.Title,
		Content:         args.Content,
		Kind:            kind,
		AudioPath:       args.AudioPath,
		ImagePath:       args.ImagePath,
		LinkedFilePath:  args.LinkedFilePath,
		DurationSeconds: args.DurationSeconds,
	})
	if err != nil {
		return nil, appendResult{}, err
	}
	s.log.Info("mcpserver: entry appended", "id", entry.ID, "date", args.Date)
	return nil, appendResult{ID: entry.ID, Path: s.store.FilePath(date)}, nil
}

type updateStatusArgs struct {
	Date   string `json:"date" jsonschema:"day the entry lives in, formatted YYYY-MM-DD"`
	ID     string `json:"id" jsonschema:"para-ID of the entry"`
	Status string `json:"status" jsonschema:"new status: pending, transcribing, complete, or failed"`
}

type updateStatusResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) journalUpdateStatus(_ context.Context, _ *mcp.CallToolRequest, args updateStatusArgs) (*mcp.CallToolResult, updateStatusResult, error) {
	date, err := parseDate(args.Date)
	if err != nil {
		return nil, updateStatusResult{}, err
	}
	status, err := parseStatus(args.Status)
	if err != nil {
		return nil, updateStatusResult{}, err
	}
	if err := s.store.UpdateStatus(date, args.ID, status); err != nil {
		return nil, updateStatusResult{}, err
	}
	return nil, updateStatusResult{ID: args.ID, Status: args.Status}, nil
}

type lookupArgs struct {
	ID string `json:"id" jsonschema:"para-ID to resolve"`
}

type lookupResult struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created string `json:"created"`
	Path    string `json:"path,omitempty"`
}

func (s *Server) paraidLookup(_ context.Context, _ *mcp.CallToolRequest, args lookupArgs) (*mcp.CallToolResult, lookupResult, error) {
	if !paraid.Valid(args.ID) {
		return nil, lookupResult{}, fmt.Errorf("mcpserver: %q is not a valid para-ID", args.ID)
	}
	entry, ok := s.reg.GetEntry(args.ID)
	if !ok {
		return nil, lookupResult{}, fmt.Errorf("mcpserver: unknown para-ID %q", args.ID)
	}
	return nil, lookupResult{
		ID:      entry.ID,
		Type:    string(entry.Type),
		Created: entry.Created.Format(time.RFC3339),
		Path:    entry.Path,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("mcpserver: date must be YYYY-MM-DD: %w", err)
	}
	return d, nil
}

func parseKind(s string) (journal.Kind, error) {
	switch journal.Kind(s) {
	case "":
		return journal.KindText, nil
	case journal.KindText, journal.KindVoice, journal.KindLinked, journal.KindPhoto, journal.KindHandwriting:
		return journal.Kind(s), nil
	default:
		return "", fmt.Errorf("mcpserver: unknown kind %q", s)
	}
}

func parseStatus(s string) (journal.Status, error) {
	switch journal.Status(s) {
	case journal.StatusPending, journal.StatusTranscribing, journal.StatusComplete, journal.StatusFailed:
		return journal.Status(s), nil
	default:
		return "", fmt.Errorf("mcpserver: unknown status %q", s)
	}
}
