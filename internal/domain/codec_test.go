package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDocumentJSON_RoundTrip(t *testing.T) {
	doc := NewDocument(text("a", "uno\ndos"), AudioBlock{ID: "x", MediaRef: "take.wav", Duration: "1:05"}, text("b", ""))

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"id":"a","type":"text","content":"uno\ndos"},{"id":"x","type":"audio","uri":"take.wav","duration":"1:05"},{"id":"b","type":"text","content":""}]`
	if string(data) != want {
		t.Errorf("unexpected encoding:\n got %s\nwant %s", data, want)
	}

	var back Document
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(doc) {
		t.Errorf("round trip mismatch: %#v", back.Blocks())
	}
}

func TestDocumentJSON_EmptyIsArray(t *testing.T) {
	data, err := json.Marshal(Document{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("expected [], got %s", data)
	}
}

func TestDecodeLyrics_LegacyString(t *testing.T) {
	doc, err := DecodeLyrics(json.RawMessage(`"verso uno\nverso dos"`))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Len() != 1 {
		t.Fatalf("expected 1 block, got %d", doc.Len())
	}
	tb, ok := doc.At(0).(TextBlock)
	if !ok || tb.Content != "verso uno\nverso dos" || tb.ID == "" {
		t.Errorf("unexpected block %#v", doc.At(0))
	}
}

func TestDecodeLyrics_Absent(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		doc, err := DecodeLyrics(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("%q: %v", raw, err)
		}
		if doc.Len() != 1 {
			t.Fatalf("%q: expected default document, got %d blocks", raw, doc.Len())
		}
		if tb, ok := doc.At(0).(TextBlock); !ok || tb.Content != "" {
			t.Errorf("%q: expected empty text block, got %#v", raw, doc.At(0))
		}
	}
}

func TestDecodeLyrics_EmptyArray(t *testing.T) {
	doc, err := DecodeLyrics(json.RawMessage(`[]`))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Len() != 0 {
		t.Errorf("expected empty document, got %d blocks", doc.Len())
	}
}

func TestDecodeLyrics_RepairsIDsAndSkipsUnknown(t *testing.T) {
	raw := `[
		{"id":"a","type":"text","content":"x"},
		{"id":"a","type":"audio","uri":"m.wav","duration":"0:02"},
		{"type":"text"},
		{"id":"z","type":"image","content":"?"}
	]`
	doc, err := DecodeLyrics(json.RawMessage(raw))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Len() != 3 {
		t.Fatalf("expected 3 blocks, got %d", doc.Len())
	}
	ids := map[string]bool{}
	for _, b := range doc.Blocks() {
		if b.BlockID() == "" || ids[b.BlockID()] {
			t.Errorf("bad id %q", b.BlockID())
		}
		ids[b.BlockID()] = true
	}
	if doc.At(0).BlockID() != "a" {
		t.Errorf("first occurrence should keep its id")
	}
	if tb := doc.At(2).(TextBlock); tb.Content != "" {
		t.Errorf("missing content should decode as empty, got %q", tb.Content)
	}
}

func TestDecodeLyrics_Invalid(t *testing.T) {
	if _, err := DecodeLyrics(json.RawMessage(`{"id":1}`)); err == nil {
		t.Error("expected error for object lyrics")
	}
}

func TestProjectJSON_LegacyRecord(t *testing.T) {
	raw := `{
		"id": "p1",
		"title": "Canción vieja",
		"status": "en progreso",
		"lyrics": "primera línea\nsegunda",
		"notes": "idea",
		"createdAt": "2024-03-01T10:00:00.000Z",
		"lastModified": "2024-03-02T11:30:00.000Z"
	}`
	var p Project
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Status != StatusInProgress {
		t.Errorf("expected status normalized, got %q", p.Status)
	}
	if p.Lyrics.Len() != 1 || p.Lyrics.Snippet() != "primera línea" {
		t.Errorf("unexpected lyrics %#v", p.Lyrics.Blocks())
	}
	if p.Recordings == nil || p.Genre == nil || p.Mood == nil {
		t.Error("missing collections should decode as empty slices")
	}
	if !p.LastModified.Equal(time.Date(2024, 3, 2, 11, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected lastModified %v", p.LastModified)
	}
}

func TestProjectJSON_RoundTrip(t *testing.T) {
	p := NewProject("Demo")
	p.Lyrics, _ = p.Lyrics.InsertAudio(NewAudioBlock("take.wav", "0:12"), nil)
	p.Recordings = append(p.Recordings, Recording{ID: "r1", Name: "Grabación 10:00:00", MediaRef: "r1.wav", Duration: "0:30", Date: time.Now().UTC().Truncate(time.Second)})
	p.Genre = ToggleTag(p.Genre, "Folk")

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"type":"audio"`) {
		t.Errorf("expected audio block in %s", data)
	}

	var back Project
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Lyrics.Equal(p.Lyrics) {
		t.Error("lyrics mismatch after round trip")
	}
	if back.Title != "Demo" || back.Status != StatusInProgress || len(back.Recordings) != 1 || back.Genre[0] != "Folk" {
		t.Errorf("unexpected project %+v", back)
	}
}

func TestProjectJSON_MissingStatus(t *testing.T) {
	var p Project
	if err := json.Unmarshal([]byte(`{"id":"p","lyrics":[]}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusInProgress {
		t.Errorf("expected default status, got %q", p.Status)
	}
	if !p.CreatedAt.IsZero() {
		t.Error("missing createdAt should stay zero")
	}
}
