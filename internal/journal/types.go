// Package journal implements the surgical markdown journal store: one file
// per calendar day, YAML frontmatter for per-entry metadata, and a body of
// H1-delimited entry blocks anchored by para-IDs.
//
// The file is the source of truth. Every read constructs a fresh [Day] from
// disk and every mutation re-derives state from disk before editing, because
// the file may be concurrently edited by the user or an external sync tool.
// Mutations splice the minimal byte range and leave everything else verbatim;
// whole files are never re-serialized from memory.
package journal

import (
	"time"
)

// Kind classifies an entry by how it was captured.
type Kind string

const (
	KindText        Kind = "text"
	KindVoice       Kind = "voice"
	KindLinked      Kind = "linked"
	KindPhoto       Kind = "photo"
	KindHandwriting Kind = "handwriting"
)

// Status tracks a voice entry's transcription lifecycle.
type Status string

const (
	StatusPending      Status = "pending"
	StatusTranscribing Status = "transcribing"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
)

// PreambleID is the synthetic ID of the pseudo-entry holding free-form text
// that appears before the first H1 header. Its length differs from both
// para-ID formats, so it can never collide with a real ID.
const PreambleID = "preamble"

// Entry is one journal entry as parsed from a day file. Identity is ID;
// content and metadata are mutated only through the store's surgical
// operations.
type Entry struct {
	ID      string
	Title   string
	Content string
	Kind    Kind

	// CreatedAt combines the day's date with the metadata stanza's HH:MM
	// created field. Zero when the stanza is absent.
	CreatedAt time.Time

	// Asset references, relative to the vault root.
	AudioPath      string
	ImagePath      string
	LinkedFilePath string

	// DurationSeconds is the recorded audio length for voice entries.
	DurationSeconds int

	// Status is the transcription lifecycle state of a voice entry. Empty
	// for other kinds.
	Status Status

	// LinedBackground renders handwriting entries over ruled lines.
	LinedBackground bool

	// IsPlainMarkdown marks entries with no metadata stanza: plain markdown
	// blocks that live entirely in the body.
	IsPlainMarkdown bool

	// IsPendingTranscription mirrors status pending/transcribing for voice
	// entries whose text has not arrived yet.
	IsPendingTranscription bool
}

// Metadata is the per-entry frontmatter stanza. Fields that do not apply to
// the entry kind stay zero and are omitted on serialization.
type Metadata struct {
	Type            Kind   `yaml:"type,omitempty"`
	Audio           string `yaml:"audio,omitempty"`
	Image           string `yaml:"image,omitempty"`
	Linked          string `yaml:"linked,omitempty"`
	Duration        int    `yaml:"duration,omitempty"`
	Status          Status `yaml:"status,omitempty"`
	Created         string `yaml:"created,omitempty"`
	LinedBackground bool   `yaml:"lined_background,omitempty"`
}

// Day is one day's journal parsed from its backing file. Ownership is
// transient: a Day is a snapshot, never an authority — operations re-read the
// file.
type Day struct {
	Date     time.Time
	Entries  []Entry
	Metadata map[string]Metadata
	FilePath string
}

// Entry returns the entry with the given ID.
func (d *Day) Entry(id string) (Entry, bool) {
	for _, e := range d.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// DateKey formats a date the way day files and frontmatter record it.
func DateKey(date time.Time) string {
	return date.Format("2006-01-02")
}
