package agent

import "strings"

// Delegation carries a parsed delegation directive from a supervisor
// response.
type Delegation struct {
	Target       string
	Task         string
	Instructions string
}

// ParseDelegation scans a response line-by-line for DELEGATE_TO / TASK /
// INSTRUCTIONS markers. Markers appear in three surface forms: plain text,
// bracketed with **…**, or as a JSON key/value pair on its own line.
// INSTRUCTIONS content runs through end-of-line and may contain colons.
// Returns nil unless both DELEGATE_TO and TASK were found.
func ParseDelegation(response string) *Delegation {
	var d Delegation
	for _, line := range strings.Split(response, "\n") {
		if v, ok := markerValue(line, "DELEGATE_TO"); ok {
			d.Target = v
		} else if v, ok := markerValue(line, "TASK"); ok {
			d.Task = v
		} else if v, ok := markerValue(line, "INSTRUCTIONS"); ok {
			d.Instructions = v
		}
	}
	if d.Target == "" || d.Task == "" {
		return nil
	}
	return &d
}

// markerValue extracts the value of a marker from one line, tolerating the
// bold and JSON surface forms. The value keeps embedded colons intact.
func markerValue(line, marker string) (string, bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimSpace(s)

	// JSON form: "MARKER": "value",
	s = strings.TrimSuffix(s, ",")

	// Bold form: **MARKER:** value or **MARKER: value**
	s = strings.ReplaceAll(s, "**", "")
	s = strings.TrimSpace(s)

	// Quoted key from the JSON form.
	trimmed := strings.TrimPrefix(s, `"`)
	if !strings.HasPrefix(trimmed, marker) {
		return "", false
	}
	rest := trimmed[len(marker):]

	// The key must be followed by a closing quote and/or a colon.
	rest = strings.TrimPrefix(rest, `"`)
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	value := strings.TrimSpace(rest[1:])
	value = strings.TrimPrefix(value, `"`)
	value = strings.TrimSuffix(value, `"`)
	return strings.TrimSpace(value), true
}
