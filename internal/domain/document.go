package domain

import (
	"strings"
	"unicode/utf8"
)

// Cursor is the caret position reported by the editor: a block id and a
// character offset inside that block. A cursor whose block no longer exists
// is treated as if there were no cursor.
type Cursor struct {
	BlockID string `json:"blockId"`
	Offset  int    `json:"offset"`
}

// FocusTarget is where an operation suggests the caret should go next.
type FocusTarget struct {
	BlockID string `json:"blockId"`
	Offset  int    `json:"offset"`
}

// Document is an ordered sequence of blocks. It is an immutable value:
// every operation returns a new Document and leaves the receiver untouched.
// The zero value is an empty document.
type Document struct {
	blocks []Block
}

// NewDocument builds a document from the given blocks, in order.
func NewDocument(blocks ...Block) Document {
	out := make([]Block, len(blocks))
	copy(out, blocks)
	return Document{blocks: out}
}

// DefaultDocument is the starting state of new lyrics: a single empty text block.
func DefaultDocument() Document {
	return NewDocument(NewTextBlock(""))
}

// Blocks returns a copy of the block sequence.
func (d Document) Blocks() []Block {
	out := make([]Block, len(d.blocks))
	copy(out, d.blocks)
	return out
}

func (d Document) Len() int { return len(d.blocks) }

// IndexOf returns the position of the block with the given id, or -1.
func (d Document) IndexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, b := range d.blocks {
		if b.BlockID() == id {
			return i
		}
	}
	return -1
}

// Block looks up a block by id.
func (d Document) Block(id string) (Block, bool) {
	i := d.IndexOf(id)
	if i < 0 {
		return nil, false
	}
	return d.blocks[i], true
}

// At returns the block at position i.
func (d Document) At(i int) Block {
	return d.blocks[i]
}

// Equal reports whether both documents hold the same blocks in the same order.
func (d Document) Equal(other Document) bool {
	if len(d.blocks) != len(other.blocks) {
		return false
	}
	for i := range d.blocks {
		if d.blocks[i] != other.blocks[i] {
			return false
		}
	}
	return true
}

// ── Mutations ───────────────────────────────────────────────

// EditText replaces the content of a text block. Unknown ids and audio
// blocks leave the document unchanged.
func (d Document) EditText(blockID, content string) Document {
	i := d.IndexOf(blockID)
	if i < 0 {
		return d
	}
	t, ok := d.blocks[i].(TextBlock)
	if !ok || t.Content == content {
		return d
	}
	out := d.Blocks()
	out[i] = TextBlock{ID: t.ID, Content: content}
	return Document{blocks: out}
}

// DeleteBlock removes a block. Neighbors are not merged.
func (d Document) DeleteBlock(blockID string) Document {
	i := d.IndexOf(blockID)
	if i < 0 {
		return d
	}
	return d.removeAt(i)
}

// InsertAudio places an audio block relative to the cursor.
//
// With no usable cursor the block is appended. On an audio block it goes
// right after it. On a text block the text is split at the first newline at
// or after the cursor offset (or at the end of the content), producing
// pre-text, the audio block, and post-text under a fresh id. Empty pre or
// post blocks are kept. When a split happens the returned focus points at
// the start of the post block.
func (d Document) InsertAudio(block AudioBlock, cursor *Cursor) (Document, *FocusTarget) {
	if block.ID == "" || d.IndexOf(block.ID) >= 0 {
		block.ID = d.freshID()
	}

	idx := -1
	if cursor != nil {
		idx = d.IndexOf(cursor.BlockID)
	}
	if idx < 0 {
		return d.insertAt(len(d.blocks), block), nil
	}

	cur, ok := d.blocks[idx].(TextBlock)
	if !ok {
		return d.insertAt(idx+1, block), nil
	}

	runes := []rune(cur.Content)
	offset := clamp(cursor.Offset, 0, len(runes))
	split := len(runes)
	for i := offset; i < len(runes); i++ {
		if runes[i] == '\n' {
			split = i
			break
		}
	}

	post := TextBlock{ID: d.freshID(block.ID), Content: string(runes[split:])}

	out := make([]Block, 0, len(d.blocks)+2)
	out = append(out, d.blocks[:idx]...)
	out = append(out, TextBlock{ID: cur.ID, Content: string(runes[:split])}, block, post)
	out = append(out, d.blocks[idx+1:]...)

	return Document{blocks: out}, &FocusTarget{BlockID: post.ID, Offset: 0}
}

// BoundaryBackspace handles backspace pressed with the caret at the very
// start of a block. Any selectionStart other than 0, and the first block,
// are no-ops.
//
//   - An empty text block is removed and focus moves to the end of the
//     previous text block (skipping one audio block if needed).
//   - A non-empty block preceded by audio removes that audio block.
//   - A non-empty text block preceded by text is merged into it and focus
//     lands at the join point.
func (d Document) BoundaryBackspace(blockID string, selectionStart int) (Document, *FocusTarget) {
	if selectionStart != 0 {
		return d, nil
	}
	idx := d.IndexOf(blockID)
	if idx <= 0 {
		return d, nil
	}

	cur := d.blocks[idx]
	prev := d.blocks[idx-1]

	if t, ok := cur.(TextBlock); ok && t.Content == "" {
		next := d.removeAt(idx)
		if p, ok := prev.(TextBlock); ok {
			return next, &FocusTarget{BlockID: p.ID, Offset: utf8.RuneCountInString(p.Content)}
		}
		if idx >= 2 {
			if pp, ok := d.blocks[idx-2].(TextBlock); ok {
				return next, &FocusTarget{BlockID: pp.ID, Offset: utf8.RuneCountInString(pp.Content)}
			}
		}
		return next, nil
	}

	switch p := prev.(type) {
	case AudioBlock:
		return d.removeAt(idx - 1), nil
	case TextBlock:
		t, ok := cur.(TextBlock)
		if !ok {
			return d, nil
		}
		out := make([]Block, 0, len(d.blocks)-1)
		out = append(out, d.blocks[:idx-1]...)
		out = append(out, TextBlock{ID: p.ID, Content: p.Content + t.Content})
		out = append(out, d.blocks[idx+1:]...)
		return Document{blocks: out}, &FocusTarget{BlockID: p.ID, Offset: utf8.RuneCountInString(p.Content)}
	}
	return d, nil
}

// ── Queries ─────────────────────────────────────────────────

// CharacterCount is the total number of characters across text blocks.
func (d Document) CharacterCount() int {
	n := 0
	for _, b := range d.blocks {
		n += BlockCharacters(b)
	}
	return n
}

// LineCount sums newlines + 1 over every text block.
func (d Document) LineCount() int {
	n := 0
	for _, b := range d.blocks {
		n += BlockLines(b)
	}
	return n
}

// TextBlocks returns only the text blocks, in order.
func (d Document) TextBlocks() []TextBlock {
	var out []TextBlock
	for _, b := range d.blocks {
		if t, ok := b.(TextBlock); ok {
			out = append(out, t)
		}
	}
	return out
}

// AudioRefs returns the media references of all audio blocks, in order.
func (d Document) AudioRefs() []string {
	var out []string
	for _, b := range d.blocks {
		if a, ok := b.(AudioBlock); ok {
			out = append(out, a.MediaRef)
		}
	}
	return out
}

// Snippet is the first line of the first text block with non-blank content.
func (d Document) Snippet() string {
	for _, t := range d.TextBlocks() {
		if strings.TrimSpace(t.Content) != "" {
			return firstLine(t.Content)
		}
	}
	return ""
}

// PlainText joins all text blocks with newlines. Audio blocks are skipped.
func (d Document) PlainText() string {
	parts := make([]string, 0, len(d.blocks))
	for _, t := range d.TextBlocks() {
		parts = append(parts, t.Content)
	}
	return strings.Join(parts, "\n")
}

// ── helpers ─────────────────────────────────────────────────

func (d Document) insertAt(i int, b Block) Document {
	out := make([]Block, 0, len(d.blocks)+1)
	out = append(out, d.blocks[:i]...)
	out = append(out, b)
	out = append(out, d.blocks[i:]...)
	return Document{blocks: out}
}

func (d Document) removeAt(i int) Document {
	out := make([]Block, 0, len(d.blocks)-1)
	out = append(out, d.blocks[:i]...)
	out = append(out, d.blocks[i+1:]...)
	return Document{blocks: out}
}

// freshID returns an id not used by the document nor by any of the reserved ids.
func (d Document) freshID(reserved ...string) string {
	for {
		id := NewID()
		if d.IndexOf(id) >= 0 {
			continue
		}
		taken := false
		for _, r := range reserved {
			if r == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
