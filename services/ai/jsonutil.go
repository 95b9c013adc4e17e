package aisvc

import (
	"regexp"
	"strings"
)

var (
	fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")
	bareObject   = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON pulls the JSON object out of a model reply. Models wrap it in code fences,
// surround it with prose, leave // comments and trailing commas; all of that is dropped.
// An empty string means no object was found.
func extractJSON(reply string) string {
	var raw string
	if m := fencedObject.FindStringSubmatch(reply); len(m) > 1 {
		raw = m[1]
	} else {
		raw = bareObject.FindString(reply)
	}
	if raw == "" {
		return ""
	}

	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripComment(line)
	}
	return dropTrailingCommas(strings.Join(lines, "\n"))
}

// dropTrailingCommas removes commas closing an object or array, with the blanks after them.
// String literals are left alone.
func dropTrailingCommas(raw string) string {
	var (
		b                 strings.Builder
		inString, escaped bool
	)
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case c == ',' && !inString:
			j := i + 1
			for j < len(raw) && strings.IndexByte(" \t\r\n", raw[j]) >= 0 {
				j++
			}
			if j < len(raw) && (raw[j] == '}' || raw[j] == ']') {
				i = j - 1
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// stripComment cuts a // comment off line, ignoring slashes inside string literals.
func stripComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	var inString, escaped bool
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
