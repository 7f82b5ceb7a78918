package journal

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const fmDelim = "---"

// frontmatterDoc is the on-disk frontmatter schema. Entries is the current
// format; Assets is the legacy flat map (id -> audio path) that older vaults
// still carry.
type frontmatterDoc struct {
	Date    string              `yaml:"date"`
	Entries map[string]Metadata `yaml:"entries"`
	Assets  map[string]string   `yaml:"assets"`
}

// splitFrontmatter divides raw file content into the frontmatter bytes
// (between the opening and closing "---" lines, exclusive) and the body that
// follows the closing delimiter. A file without a frontmatter block is all
// body. bodyStart is the byte offset of the body within content, so surgical
// edits can splice against the original bytes.
func splitFrontmatter(content []byte) (fm []byte, body []byte, bodyStart int) {
	open := []byte(fmDelim + "\n")
	if !bytes.HasPrefix(content, open) {
		return nil, content, 0
	}
	rest := content[len(open):]
	// Closing delimiter: a line that is exactly "---".
	if bytes.HasPrefix(rest, []byte(fmDelim+"\n")) {
		// Empty frontmatter.
		bodyStart = len(open) + len(fmDelim) + 1
		return nil, content[bodyStart:], bodyStart
	}
	idx := bytes.Index(rest, []byte("\n"+fmDelim+"\n"))
	if idx < 0 {
		// Closing delimiter at EOF without trailing newline.
		if bytes.HasSuffix(rest, []byte("\n"+fmDelim)) {
			fmEnd := len(open) + len(rest) - len(fmDelim) - 1
			return content[len(open):fmEnd], nil, len(content)
		}
		return nil, content, 0
	}
	fmEnd := len(open) + idx
	bodyStart = fmEnd + 1 + len(fmDelim) + 1
	return content[len(open):fmEnd], content[bodyStart:], bodyStart
}

// parseFrontmatter unmarshals the frontmatter and translates any legacy
// assets map into the canonical entries form. Legacy records are implicit
// voice entries whose transcription already completed.
func parseFrontmatter(fm []byte) (map[string]Metadata, error) {
	var doc frontmatterDoc
	if err := yaml.Unmarshal(fm, &doc); err != nil {
		return nil, fmt.Errorf("journal: parse frontmatter: %w", err)
	}
	meta := doc.Entries
	if meta == nil {
		meta = make(map[string]Metadata)
	}
	for id, audio := range doc.Assets {
		if _, exists := meta[id]; exists {
			continue
		}
		meta[id] = Metadata{Type: KindVoice, Audio: audio, Status: StatusComplete}
	}
	return meta, nil
}

// newFileContent renders a fresh day file: frontmatter header plus an empty
// body ready for the first appended block.
func newFileContent(date string) []byte {
	return []byte(fmDelim + "\ndate: " + date + "\n" + fmDelim + "\n")
}

// marshalStanza renders one entry's metadata as the indented lines that live
// under the entries: mapping. Field order is fixed so files stay diffable.
func marshalStanza(id string, m Metadata) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s:\n", id)
	if m.Type != "" {
		fmt.Fprintf(&b, "    type: %s\n", m.Type)
	}
	if m.Audio != "" {
		fmt.Fprintf(&b, "    audio: %s\n", m.Audio)
	}
	if m.Image != "" {
		fmt.Fprintf(&b, "    image: %s\n", m.Image)
	}
	if m.Linked != "" {
		fmt.Fprintf(&b, "    linked: %s\n", m.Linked)
	}
	if m.Duration > 0 {
		fmt.Fprintf(&b, "    duration: %d\n", m.Duration)
	}
	if m.Status != "" {
		fmt.Fprintf(&b, "    status: %s\n", m.Status)
	}
	if m.Created != "" {
		fmt.Fprintf(&b, "    created: %s\n", m.Created)
	}
	if m.LinedBackground {
		b.WriteString("    lined_background: true\n")
	}
	return []byte(b.String())
}

// insertStanza splices a metadata stanza into the file's frontmatter region
// without re-serializing the rest: the stanza is inserted directly under the
// entries: key, creating the key just before the closing delimiter if absent.
// Returns content unchanged (and false) when the file has no frontmatter.
func insertStanza(content []byte, stanza []byte) ([]byte, bool) {
	fm, _, bodyStart := splitFrontmatter(content)
	if bodyStart == 0 {
		return content, false
	}
	fmStart := len(fmDelim) + 1

	if idx := indexLine(fm, []byte("entries:")); idx >= 0 {
		lineEnd := fmStart + idx + len("entries:")
		if nl := bytes.IndexByte(content[lineEnd:], '\n'); nl >= 0 {
			lineEnd += nl + 1
		} else {
			lineEnd = fmStart + len(fm)
		}
		return splice(content, lineEnd, lineEnd, stanza), true
	}

	// No entries: key yet. Create it just before the closing delimiter line.
	block := append([]byte("entries:\n"), stanza...)
	var at int
	if bodyStart == len(content) && !bytes.HasSuffix(content, []byte("\n")) {
		// Closing delimiter sits at EOF without a trailing newline.
		at = len(content) - len(fmDelim)
	} else {
		at = bodyStart - len(fmDelim) - 1
	}
	return splice(content, at, at, block), true
}

// hasStanza reports whether the file's frontmatter already carries a stanza
// for id.
func hasStanza(content []byte, id string) bool {
	fm, _, bodyStart := splitFrontmatter(content)
	if bodyStart == 0 || len(fm) == 0 {
		return false
	}
	_, _, ok := stanzaRange(fm, id)
	return ok
}

// removeStanza deletes the frontmatter sub-mapping for id: its "  <id>:" line
// plus every following line with deeper indentation. Lines outside the stanza
// are untouched. Returns false when no stanza exists.
func removeStanza(content []byte, id string) ([]byte, bool) {
	fm, _, bodyStart := splitFrontmatter(content)
	if bodyStart == 0 || len(fm) == 0 {
		return content, false
	}
	fmStart := len(fmDelim) + 1

	start, end, ok := stanzaRange(fm, id)
	if !ok {
		return content, false
	}
	return splice(content, fmStart+start, fmStart+end, nil), true
}

// rewriteStatus rewrites only the status: line inside id's stanza, preserving
// its indentation and every other byte of the file. When the stanza has no
// status line yet, one is inserted at the top of the stanza.
func rewriteStatus(content []byte, id string, status Status) ([]byte, bool) {
	fm, _, bodyStart := splitFrontmatter(content)
	if bodyStart == 0 || len(fm) == 0 {
		return content, false
	}
	fmStart := len(fmDelim) + 1

	start, end, ok := stanzaRange(fm, id)
	if !ok {
		return content, false
	}
	stanza := fm[start:end]

	lineOff := 0
	first := true
	for lineOff < len(stanza) {
		lineEnd := len(stanza)
		if nl := bytes.IndexByte(stanza[lineOff:], '\n'); nl >= 0 {
			lineEnd = lineOff + nl
		}
		line := stanza[lineOff:lineEnd]
		trimmed := bytes.TrimLeft(line, " \t")
		if !first && bytes.HasPrefix(trimmed, []byte("status:")) {
			indent := line[:len(line)-len(trimmed)]
			repl := append(append([]byte{}, indent...), []byte("status: "+string(status))...)
			at := fmStart + start + lineOff
			return splice(content, at, at+len(line), repl), true
		}
		first = false
		if lineEnd == len(stanza) {
			break
		}
		lineOff = lineEnd + 1
	}

	// Stanza without a status line: insert one after the "<id>:" line.
	ins := []byte("    status: " + string(status) + "\n")
	headEnd := bytes.IndexByte(stanza, '\n')
	if headEnd < 0 {
		headEnd = len(stanza)
		ins = append([]byte("\n"), ins...)
	} else {
		headEnd++
	}
	at := fmStart + start + headEnd
	return splice(content, at, at, ins), true
}

// stanzaRange returns the byte range [start, end) of id's stanza within the
// frontmatter: the "<id>:" key line plus all following more-indented lines.
func stanzaRange(fm []byte, id string) (start, end int, ok bool) {
	key := []byte(id + ":")
	off := 0
	for off < len(fm) {
		lineEnd := len(fm)
		if nl := bytes.IndexByte(fm[off:], '\n'); nl >= 0 {
			lineEnd = off + nl
		}
		line := fm[off:lineEnd]
		trimmed := bytes.TrimLeft(line, " ")
		keyIndent := len(line) - len(trimmed)
		if keyIndent > 0 && bytes.Equal(bytes.TrimRight(trimmed, " "), key) {
			start = off
			end = lineEnd
			if end < len(fm) {
				end++
			}
			// Consume the more-indented lines that belong to this stanza.
			for end < len(fm) {
				next := len(fm)
				if nl := bytes.IndexByte(fm[end:], '\n'); nl >= 0 {
					next = end + nl
				}
				nline := fm[end:next]
				ntrim := bytes.TrimLeft(nline, " ")
				if len(ntrim) > 0 && len(nline)-len(ntrim) <= keyIndent {
					break
				}
				end = next
				if end < len(fm) {
					end++
				}
			}
			return start, end, true
		}
		off = lineEnd + 1
	}
	return 0, 0, false
}

// indexLine finds the byte offset of a line that begins exactly with prefix
// at column zero, or -1.
func indexLine(data []byte, prefix []byte) int {
	if bytes.HasPrefix(data, prefix) {
		return 0
	}
	idx := bytes.Index(data, append([]byte("\n"), prefix...))
	if idx < 0 {
		return -1
	}
	return idx + 1
}

// splice replaces content[start:end] with repl, copying into a fresh slice.
func splice(content []byte, start, end int, repl []byte) []byte {
	out := make([]byte, 0, len(content)-(end-start)+len(repl))
	out = append(out, content[:start]...)
	out = append(out, repl...)
	out = append(out, content[end:]...)
	return out
}
