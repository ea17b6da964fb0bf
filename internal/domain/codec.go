package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type wireBlock struct {
	ID       string    `json:"id"`
	Type     BlockType `json:"type"`
	Content  *string   `json:"content,omitempty"`
	URI      string    `json:"uri,omitempty"`
	Duration string    `json:"duration,omitempty"`
}

// MarshalJSON encodes the document as an array of tagged blocks.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make([]wireBlock, 0, len(d.blocks))
	for _, b := range d.blocks {
		switch v := b.(type) {
		case TextBlock:
			content := v.Content
			out = append(out, wireBlock{ID: v.ID, Type: BlockTypeText, Content: &content})
		case AudioBlock:
			out = append(out, wireBlock{ID: v.ID, Type: BlockTypeAudio, URI: v.MediaRef, Duration: v.Duration})
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the block array as well as the legacy plain-string
// form. See DecodeLyrics.
func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := DecodeLyrics(data)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

// DecodeLyrics reads a stored lyrics value.
//
// A JSON string becomes a single text block holding it. An absent or null
// value becomes the default document. An array is read block by block:
// entries with an unknown type are dropped and missing or repeated ids are
// replaced so ids stay unique.
func DecodeLyrics(raw json.RawMessage) (Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return DefaultDocument(), nil
	}

	if trimmed[0] == '"' {
		var legacy string
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return Document{}, fmt.Errorf("decode legacy lyrics: %w", err)
		}
		return NewDocument(NewTextBlock(legacy)), nil
	}

	var wire []wireBlock
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Document{}, fmt.Errorf("decode lyrics: %w", err)
	}

	seen := make(map[string]struct{}, len(wire))
	blocks := make([]Block, 0, len(wire))
	for _, w := range wire {
		id := w.ID
		if _, dup := seen[id]; id == "" || dup {
			id = NewID()
		}
		switch w.Type {
		case BlockTypeText:
			content := ""
			if w.Content != nil {
				content = *w.Content
			}
			blocks = append(blocks, TextBlock{ID: id, Content: content})
		case BlockTypeAudio:
			blocks = append(blocks, AudioBlock{ID: id, MediaRef: w.URI, Duration: w.Duration})
		default:
			continue
		}
		seen[id] = struct{}{}
	}
	return Document{blocks: blocks}, nil
}

type projectWire struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Status           string          `json:"status"`
	Lyrics           json.RawMessage `json:"lyrics"`
	Notes            string          `json:"notes"`
	Recordings       []Recording     `json:"recordings"`
	Genre            []string        `json:"genre"`
	Mood             []string        `json:"mood"`
	CreatedAt        json.RawMessage `json:"createdAt"`
	LastModified     json.RawMessage `json:"lastModified"`
	HideRecordButton bool            `json:"hideRecordButton"`
}

// UnmarshalJSON fills defaults for fields older saves may lack.
func (p *Project) UnmarshalJSON(data []byte) error {
	var w projectWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	lyrics, err := DecodeLyrics(w.Lyrics)
	if err != nil {
		return err
	}

	*p = Project{
		ID:               w.ID,
		Title:            w.Title,
		Status:           ParseStatus(w.Status),
		Lyrics:           lyrics,
		Notes:            w.Notes,
		Recordings:       w.Recordings,
		Genre:            w.Genre,
		Mood:             w.Mood,
		HideRecordButton: w.HideRecordButton,
	}
	if w.Status == "" {
		p.Status = StatusInProgress
	}
	if p.Recordings == nil {
		p.Recordings = []Recording{}
	}
	if p.Genre == nil {
		p.Genre = []string{}
	}
	if p.Mood == nil {
		p.Mood = []string{}
	}
	if err := decodeTime(w.CreatedAt, &p.CreatedAt); err != nil {
		return fmt.Errorf("createdAt: %w", err)
	}
	if err := decodeTime(w.LastModified, &p.LastModified); err != nil {
		return fmt.Errorf("lastModified: %w", err)
	}
	return nil
}

func decodeTime(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`)) {
		return nil
	}
	return json.Unmarshal(trimmed, dst)
}
