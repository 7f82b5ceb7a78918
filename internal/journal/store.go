package journal

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/voxlog/voxlog/internal/paraid"
	"github.com/voxlog/voxlog/internal/vaultfs"
)

// ErrEntryNotFound is returned when an operation targets an ID with no block
// and no metadata stanza in the day file.
var ErrEntryNotFound = errors.New("journal: entry not found")

// headerRe matches an entry header line: "# id:<id>" optionally followed by
// a title. IDs are lowercase base-36 in either the current or legacy length.
var headerRe = regexp.MustCompile(`^# id:([a-z0-9]+)(?:[ \t]+(.*))?$`)

// blankRunRe matches 3 or more consecutive blank lines, for the cosmetic
// collapse after a block deletion.
var blankRunRe = regexp.MustCompile(`\n{4,}`)

// NewEntry carries the caller-supplied fields for an append. The store
// generates the ID and timestamps the entry.
type NewEntry struct {
	Title           string
	Content         string
	Kind            Kind
	AudioPath       string
	ImagePath       string
	LinkedFilePath  string
	DurationSeconds int
	Status          Status
	LinedBackground bool

	// CreatedAt defaults to the current time when zero.
	CreatedAt time.Time
}

// Store is the surgical day-file editor. It never caches file content: every
// operation reads the file fresh, splices the minimal byte range, and writes
// the result back atomically, so edits made by the user or a sync tool
// between operations survive untouched.
type Store struct {
	fs  vaultfs.FS
	reg *paraid.Registry
	log *slog.Logger

	now func() time.Time
}

// NewStore creates a store over the vault filesystem, minting and registering
// IDs through reg.
func NewStore(vfs vaultfs.FS, reg *paraid.Registry, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{fs: vfs, reg: reg, log: log, now: time.Now}
}

// FilePath returns the vault-relative day file for a date.
func (s *Store) FilePath(date time.Time) string {
	return DateKey(date) + ".md"
}

// Append mints a fresh ID, renders the entry block (and metadata stanza when
// the entry carries assets or lifecycle state), and appends it after the
// existing file content. Prior entries are never re-serialized. A missing
// file is created with a fresh frontmatter header.
func (s *Store) Append(date time.Time, f NewEntry) (Entry, error) {
	path := s.FilePath(date)

	id, err := s.reg.Generate(paraid.TypeEntry, path)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: mint id for %s: %w", path, err)
	}

	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	e := entryFromFields(id, f, createdAt)

	content, err := s.readOrCreate(date)
	if err != nil {
		return Entry{}, err
	}
	content, err = s.appendEntry(content, e)
	if err != nil {
		return Entry{}, err
	}
	if err := s.fs.WriteFile(path, content); err != nil {
		return Entry{}, fmt.Errorf("journal: write %s: %w", path, err)
	}
	return e, nil
}

// ReplaceBlock finds the entry's block by its header line and replaces
// exactly that byte range with the entry's current title and content. All
// bytes outside the block, including edits made since the entry was loaded,
// are preserved verbatim. A missing block (concurrently deleted) falls back
// to appending the entry at the end of the file rather than failing, which
// moves the entry but never loses its content.
func (s *Store) ReplaceBlock(date time.Time, e Entry) error {
	path := s.FilePath(date)

	content, err := s.readOrCreate(date)
	if err != nil {
		return err
	}

	_, _, bodyStart := splitFrontmatter(content)
	start, end, found := locateBlock(content, bodyStart, e.ID)
	if found {
		followed := end < len(content)
		content = splice(content, start, end, renderBlock(e, followed))
	} else {
		s.log.Warn("journal: block missing on replace, appending instead",
			"file", path, "id", e.ID)
		content, err = s.appendEntry(content, e)
		if err != nil {
			return err
		}
	}

	if err := s.fs.WriteFile(path, content); err != nil {
		return fmt.Errorf("journal: write %s: %w", path, err)
	}
	return nil
}

// DeleteBlock removes the entry's block and its frontmatter stanza, then
// collapses runs of 3+ blank lines in the body down to 2. The ID stays
// retired in the registry; it is never reused.
func (s *Store) DeleteBlock(date time.Time, id string) error {
	path := s.FilePath(date)

	content, err := s.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("journal: delete %s in %s: %w", id, path, ErrEntryNotFound)
		}
		return fmt.Errorf("journal: read %s: %w", path, err)
	}

	_, _, bodyStart := splitFrontmatter(content)
	start, end, found := locateBlock(content, bodyStart, id)
	if found {
		content = splice(content, start, end, nil)
	}
	content, removed := removeStanza(content, id)
	if !found && !removed {
		return fmt.Errorf("journal: delete %s in %s: %w", id, path, ErrEntryNotFound)
	}

	_, _, bodyStart = splitFrontmatter(content)
	body := blankRunRe.ReplaceAll(content[bodyStart:], []byte("\n\n\n"))
	content = append(content[:bodyStart:bodyStart], body...)

	if err := s.fs.WriteFile(path, content); err != nil {
		return fmt.Errorf("journal: write %s: %w", path, err)
	}
	return nil
}

// UpdateStatus rewrites only the status: line of the entry's frontmatter
// stanza, leaving indentation and every other line verbatim.
func (s *Store) UpdateStatus(date time.Time, id string, status Status) error {
	path := s.FilePath(date)

	content, err := s.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("journal: status of %s in %s: %w", id, path, ErrEntryNotFound)
		}
		return fmt.Errorf("journal: read %s: %w", path, err)
	}

	content, ok := rewriteStatus(content, id, status)
	if !ok {
		return fmt.Errorf("journal: status of %s in %s: %w", id, path, ErrEntryNotFound)
	}
	if err := s.fs.WriteFile(path, content); err != nil {
		return fmt.Errorf("journal: write %s: %w", path, err)
	}
	return nil
}

// Load parses the day file into a fresh Day. A missing file yields an empty
// Day, not an error. Content before the first H1 becomes a synthetic
// preamble pseudo-entry so free-form notes survive round-trips. Every
// discovered ID is registered with the registry as a side effect.
func (s *Store) Load(date time.Time) (*Day, error) {
	path := s.FilePath(date)
	day := &Day{
		Date:     date,
		Metadata: make(map[string]Metadata),
		FilePath: path,
	}

	content, err := s.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return day, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: read %s: %w", path, err)
	}

	fm, body, _ := splitFrontmatter(content)
	meta, err := parseFrontmatter(fm)
	if err != nil {
		return nil, fmt.Errorf("journal: %s: %w", path, err)
	}
	day.Metadata = meta

	day.Entries = s.parseBody(body, meta, date, path)
	return day, nil
}

// readOrCreate reads the day file, synthesizing a fresh frontmatter header
// when it does not exist yet.
func (s *Store) readOrCreate(date time.Time) ([]byte, error) {
	path := s.FilePath(date)
	content, err := s.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return newFileContent(DateKey(date)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: read %s: %w", path, err)
	}
	return content, nil
}

// appendEntry appends the entry's block after the existing content and, when
// the entry carries metadata, splices its stanza into the frontmatter. The
// body bytes that were already present are copied through unchanged.
func (s *Store) appendEntry(content []byte, e Entry) ([]byte, error) {
	if m, hasMeta := metadataFor(e); hasMeta && !hasStanza(content, e.ID) {
		var ok bool
		content, ok = insertStanza(content, marshalStanza(e.ID, m))
		if !ok {
			// File without frontmatter (externally created). The stanza has
			// nowhere to live; the entry still parses via type inference.
			s.log.Warn("journal: no frontmatter, skipping metadata stanza", "id", e.ID)
		}
	}

	if len(content) > 0 && content[len(content)-1] != '\n' {
		content = append(content, '\n')
	}
	content = append(content, '\n')
	content = append(content, renderBlock(e, false)...)
	return content, nil
}

// renderBlock renders one entry block. followed indicates another header
// comes right after the block, in which case the trailing separator keeps a
// blank line before it.
func renderBlock(e Entry, followed bool) []byte {
	var b strings.Builder
	b.WriteString("# id:" + e.ID)
	if e.Title != "" {
		b.WriteString(" " + e.Title)
	}
	b.WriteString("\n")
	if e.Content != "" {
		b.WriteString("\n" + e.Content + "\n")
	}
	b.WriteString("\n---\n")
	if followed {
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// locateBlock returns the byte range [start, end) of the block for id:
// from its header line up to the next top-level header or end of file.
// The search starts at bodyStart so frontmatter content can never match.
func locateBlock(content []byte, bodyStart int, id string) (start, end int, found bool) {
	marker := []byte("# id:" + id)
	off := bodyStart
	for off < len(content) {
		lineEnd := len(content)
		if nl := bytes.IndexByte(content[off:], '\n'); nl >= 0 {
			lineEnd = off + nl
		}
		line := content[off:lineEnd]
		if bytes.HasPrefix(line, marker) &&
			(len(line) == len(marker) || line[len(marker)] == ' ' || line[len(marker)] == '\t') {
			start = off
			end = nextHeader(content, lineEnd)
			return start, end, true
		}
		off = lineEnd + 1
	}
	return 0, 0, false
}

// nextHeader returns the offset of the next line starting with "# " at or
// after from, or len(content).
func nextHeader(content []byte, from int) int {
	off := from
	for off < len(content) {
		if content[off] == '\n' {
			off++
			continue
		}
		lineEnd := len(content)
		if nl := bytes.IndexByte(content[off:], '\n'); nl >= 0 {
			lineEnd = off + nl
		}
		if bytes.HasPrefix(content[off:lineEnd], []byte("# ")) {
			return off
		}
		off = lineEnd + 1
	}
	return len(content)
}

// parseBody scans the body for H1 lines and builds the ordered entry list.
// Sections headed by an H1 without an id: marker are left on disk but not
// surfaced as entries; they are free-form content outside the ID system.
func (s *Store) parseBody(body []byte, meta map[string]Metadata, date time.Time, path string) []Entry {
	var entries []Entry

	flush := func(id, title string, section []byte) {
		if id == "" {
			return
		}
		text := trimSection(section)
		if id == PreambleID {
			if text == "" {
				return
			}
			entries = append(entries, Entry{
				ID:              PreambleID,
				Content:         text,
				Kind:            KindText,
				IsPlainMarkdown: true,
			})
			return
		}
		entries = append(entries, s.buildEntry(id, title, text, meta, date))
		if fresh, err := s.reg.Register(id, paraid.TypeEntry, path); err != nil {
			s.log.Warn("journal: register discovered id", "id", id, "error", err)
		} else if fresh {
			s.log.Debug("journal: registered id discovered in file", "id", id, "file", path)
		}
	}

	curID := PreambleID
	curTitle := ""
	sectionStart := 0

	off := 0
	for off < len(body) {
		lineEnd := len(body)
		if nl := bytes.IndexByte(body[off:], '\n'); nl >= 0 {
			lineEnd = off + nl
		}
		line := body[off:lineEnd]
		if bytes.HasPrefix(line, []byte("# ")) {
			flush(curID, curTitle, body[sectionStart:off])
			if m := headerRe.FindSubmatch(line); m != nil {
				curID = string(m[1])
				curTitle = strings.TrimSpace(string(m[2]))
			} else {
				curID = ""
				curTitle = ""
			}
			sectionStart = lineEnd
			if sectionStart < len(body) {
				sectionStart++
			}
		}
		off = lineEnd + 1
	}
	flush(curID, curTitle, body[sectionStart:])
	return entries
}

// buildEntry combines a parsed block with its metadata stanza. A missing
// stanza falls back to content-based type inference: an image embed means a
// photo, anything else is plain markdown text.
func (s *Store) buildEntry(id, title, content string, meta map[string]Metadata, date time.Time) Entry {
	e := Entry{ID: id, Title: title, Content: content}

	m, hasMeta := meta[id]
	if !hasMeta {
		if strings.Contains(content, "![") {
			e.Kind = KindPhoto
		} else {
			e.Kind = KindText
			e.IsPlainMarkdown = true
		}
		return e
	}

	e.Kind = m.Type
	if e.Kind == "" {
		switch {
		case m.Audio != "":
			e.Kind = KindVoice
		case m.Image != "":
			e.Kind = KindPhoto
		default:
			e.Kind = KindText
		}
	}
	e.AudioPath = m.Audio
	e.ImagePath = m.Image
	e.LinkedFilePath = m.Linked
	e.DurationSeconds = m.Duration
	e.LinedBackground = m.LinedBackground
	if e.Kind == KindVoice {
		e.Status = m.Status
	}
	e.IsPendingTranscription = e.Kind == KindVoice &&
		(m.Status == StatusPending || m.Status == StatusTranscribing)

	if m.Created != "" {
		if t, err := time.Parse("15:04", m.Created); err == nil {
			e.CreatedAt = time.Date(date.Year(), date.Month(), date.Day(),
				t.Hour(), t.Minute(), 0, 0, date.Location())
		}
	}
	return e
}

// flush and buildEntry only see parsed blocks; entryFromFields is the write
// side, shaping caller fields into the Entry that Append persists.
func entryFromFields(id string, f NewEntry, createdAt time.Time) Entry {
	kind := f.Kind
	if kind == "" {
		switch {
		case f.AudioPath != "":
			kind = KindVoice
		case f.ImagePath != "":
			kind = KindPhoto
		case f.LinkedFilePath != "":
			kind = KindLinked
		default:
			kind = KindText
		}
	}
	status := f.Status
	if kind != KindVoice {
		status = ""
	} else if status == "" {
		status = StatusPending
	}
	return Entry{
		ID:                     id,
		Title:                  f.Title,
		Content:                f.Content,
		Kind:                   kind,
		CreatedAt:              createdAt,
		AudioPath:              f.AudioPath,
		ImagePath:              f.ImagePath,
		LinkedFilePath:         f.LinkedFilePath,
		DurationSeconds:        f.DurationSeconds,
		Status:                 status,
		LinedBackground:        f.LinedBackground,
		IsPlainMarkdown:        kind == KindText && f.AudioPath == "" && f.ImagePath == "",
		IsPendingTranscription: kind == KindVoice && (status == StatusPending || status == StatusTranscribing),
	}
}

// metadataFor derives the frontmatter stanza for an entry. Plain text blocks
// carry no stanza; everything else records its kind, assets, and lifecycle.
func metadataFor(e Entry) (Metadata, bool) {
	if e.Kind == KindText && e.AudioPath == "" && e.ImagePath == "" && e.LinkedFilePath == "" {
		return Metadata{}, false
	}
	m := Metadata{
		Type:            e.Kind,
		Audio:           e.AudioPath,
		Image:           e.ImagePath,
		Linked:          e.LinkedFilePath,
		Duration:        e.DurationSeconds,
		LinedBackground: e.LinedBackground,
	}
	if e.Kind == KindVoice {
		m.Status = e.Status
		if m.Status == "" {
			if e.IsPendingTranscription {
				m.Status = StatusPending
			} else {
				m.Status = StatusComplete
			}
		}
	}
	if !e.CreatedAt.IsZero() {
		m.Created = e.CreatedAt.Format("15:04")
	}
	return m, true
}

// trimSection strips the trailing "---" separator and surrounding blank
// lines from a block's raw section bytes, yielding the entry content.
func trimSection(section []byte) string {
	text := strings.TrimRight(string(section), "\n ")
	if idx := strings.LastIndex(text, "\n---"); idx >= 0 && strings.TrimSpace(text[idx:]) == "---" {
		text = strings.TrimRight(text[:idx], "\n ")
	} else if strings.TrimSpace(text) == "---" {
		text = ""
	}
	return strings.Trim(text, "\n")
}
