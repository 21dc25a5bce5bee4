package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON parses a JSON response from a model into v, tolerating markdown
// code fences around the payload.
func DecodeJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty response")
	}

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines)
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		// A truncated response may never close the fence; keep every line
		// after the opener rather than dropping the last one.
		text = strings.Join(lines[1:endIdx], "\n")
	}

	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("parsing model response as JSON: %w", err)
	}
	return nil
}
