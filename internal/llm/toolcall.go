package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// parsedToolCall is the prompt-protocol payload a non-native provider emits.
type parsedToolCall struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ParseToolCall extracts a prompt-protocol tool call from free-form model
// output. It tries a fenced code block first, then a bare inline JSON object
// anchored on a "tool" key. The returned cleaned text always has the matched
// block removed: raw tool-call JSON must never reach the end user, even when
// the payload itself fails to decode. Text that carries no protocol block is
// returned verbatim; whitespace is only tidied around a removed block.
func ParseToolCall(text string) (call parsedToolCall, cleaned string, ok bool) {
	// 1. Fenced code blocks. A block without the protocol key is ordinary
	// content (for example a code answer) and is left alone. The text is
	// re-scanned from scratch after a strip because offsets shift.
	for {
		matched := false
		for _, m := range fencedBlockRe.FindAllStringSubmatchIndex(text, -1) {
			body := text[m[2]:m[3]]
			if !strings.Contains(body, "\"tool\"") {
				continue
			}
			stripped := tidy(text[:m[0]] + text[m[1]:])
			if c, decodeOK := decodeToolCall(body); decodeOK {
				return c, stripped, true
			}
			// Malformed payload: strip it anyway and keep scanning what
			// is left, which may still carry an inline object.
			text = stripped
			matched = true
			break
		}
		if !matched {
			break
		}
	}

	// 2. Bare inline JSON object containing a "tool" key.
	for {
		start, end, found := findInlineToolObject(text)
		if !found {
			break
		}
		body := text[start:end]
		stripped := tidy(text[:start] + text[end:])
		if c, decodeOK := decodeToolCall(body); decodeOK {
			return c, stripped, true
		}
		text = stripped
	}

	return parsedToolCall{}, text, false
}

// findInlineToolObject locates the first balanced top-level JSON object that
// mentions a "tool" key.
func findInlineToolObject(text string) (start, end int, found bool) {
	for _, s := range objectStarts(text) {
		e, balanced := matchBrace(text, s)
		if !balanced {
			continue
		}
		if strings.Contains(text[s:e], "\"tool\"") {
			return s, e, true
		}
	}
	return 0, 0, false
}

func decodeToolCall(body string) (parsedToolCall, bool) {
	var c parsedToolCall
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return parsedToolCall{}, false
	}
	if c.Tool == "" {
		return parsedToolCall{}, false
	}
	if len(c.Params) == 0 {
		c.Params = json.RawMessage("{}")
	}
	return c, true
}

// objectStarts lists candidate offsets of top-level '{' characters.
func objectStarts(text string) []int {
	var starts []int
	depth := 0
	for i, r := range text {
		switch r {
		case '{':
			if depth == 0 {
				starts = append(starts, i)
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return starts
}

// matchBrace scans from the '{' at start and returns the offset just past its
// balancing '}', honoring JSON string literals and escapes.
func matchBrace(text string, start int) (end int, balanced bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

var (
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	spaceRunsRe  = regexp.MustCompile(`[ \t]{2,}`)
)

// tidy collapses the whitespace holes left behind by a stripped block.
func tidy(text string) string {
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	text = spaceRunsRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
