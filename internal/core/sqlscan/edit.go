package sqlscan

import (
	"sort"
	"strings"
)

type edit struct {
	start, end int
	text       string
	seq        int
}

// Editor collects byte-offset edits against a source string and applies them
// in one pass. Overlapping edits are dropped in favour of the first one added.
type Editor struct {
	src   string
	edits []edit
}

// NewEditor returns an editor over src.
func NewEditor(src string) *Editor {
	return &Editor{src: src}
}

// Replace replaces src[start:end] with text.
func (e *Editor) Replace(start, end int, text string) {
	e.edits = append(e.edits, edit{start: start, end: end, text: text, seq: len(e.edits)})
}

// Insert inserts text at offset at.
func (e *Editor) Insert(at int, text string) {
	e.Replace(at, at, text)
}

// ReplaceTokens replaces the tokens [from, to) of ts with text.
func (e *Editor) ReplaceTokens(ts Tokens, from, to int, text string) {
	if from >= to || from < 0 || to > len(ts) {
		return
	}
	e.Replace(ts[from].Offset, ts[to-1].End(), text)
}

// Changed reports whether any edit was recorded.
func (e *Editor) Changed() bool {
	return len(e.edits) > 0
}

// String applies the edits and returns the result.
func (e *Editor) String() string {
	if len(e.edits) == 0 {
		return e.src
	}
	edits := make([]edit, len(e.edits))
	copy(edits, e.edits)
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].start != edits[j].start {
			return edits[i].start < edits[j].start
		}
		return edits[i].seq < edits[j].seq
	})

	var b strings.Builder
	pos := 0
	for _, ed := range edits {
		if ed.start < pos {
			continue
		}
		b.WriteString(e.src[pos:ed.start])
		b.WriteString(ed.text)
		pos = ed.end
	}
	b.WriteString(e.src[pos:])
	return b.String()
}
