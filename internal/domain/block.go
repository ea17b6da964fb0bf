package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

type BlockType string

const (
	BlockTypeText  BlockType = "text"
	BlockTypeAudio BlockType = "audio"
)

// Block is one unit of lyric content. The set of variants is closed:
// only TextBlock and AudioBlock implement it.
type Block interface {
	BlockID() string
	Type() BlockType
	isBlock()
}

// TextBlock holds a run of lyric text. Content may span several lines.
type TextBlock struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// AudioBlock is an inline recording placed between lines of text.
// Duration is display-formatted as M:SS.
type AudioBlock struct {
	ID       string `json:"id"`
	MediaRef string `json:"uri"`
	Duration string `json:"duration"`
}

func (b TextBlock) BlockID() string  { return b.ID }
func (b TextBlock) Type() BlockType  { return BlockTypeText }
func (TextBlock) isBlock()           {}
func (b AudioBlock) BlockID() string { return b.ID }
func (b AudioBlock) Type() BlockType { return BlockTypeAudio }
func (AudioBlock) isBlock()          {}

// NewID returns a fresh collision-resistant identifier.
func NewID() string {
	return uuid.NewString()
}

// NewTextBlock creates a TextBlock with a fresh id.
func NewTextBlock(content string) TextBlock {
	return TextBlock{ID: NewID(), Content: content}
}

// NewAudioBlock creates an AudioBlock with a fresh id.
func NewAudioBlock(mediaRef, duration string) AudioBlock {
	return AudioBlock{ID: NewID(), MediaRef: mediaRef, Duration: duration}
}

// BlockCharacters is the character contribution of a single block.
// Audio blocks contribute nothing.
func BlockCharacters(b Block) int {
	if t, ok := b.(TextBlock); ok {
		return utf8.RuneCountInString(t.Content)
	}
	return 0
}

// BlockLines is the line contribution of a single block: newlines + 1 for
// text, zero for audio. An empty text block still counts as one line.
func BlockLines(b Block) int {
	if t, ok := b.(TextBlock); ok {
		return strings.Count(t.Content, "\n") + 1
	}
	return 0
}
