package mcpserver

import "strings"

func getString(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return fallback
}

// getInt accepts JSON numbers, which arrive as float64.
func getInt(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func hasArg(args map[string]any, key string) bool {
	_, ok := args[key]
	return ok
}

func boolPtr(v bool) *bool { return &v }

// lyricsText renders the document the way a songwriter reads it: text
// blocks verbatim and audio blocks as a one-line marker.
func lyricsText(blocks []blockView) string {
	var b strings.Builder
	for i, v := range blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		if v.Type == "audio" {
			b.WriteString("[audio " + v.ID + " " + v.Duration + "]")
			continue
		}
		b.WriteString(v.Content)
	}
	return b.String()
}
