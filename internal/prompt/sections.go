package prompt

import (
	"fmt"
	"strings"
)

type rawSection struct {
	title   string
	special bool
	lines   []string
}

// splitSections validates every `__ ... __` delimiter line and splits src
// into an ordered list of sections. A line is considered a delimiter
// candidate if it contains "__" once trimmed; it must then take the exact
// form "__ title __" with nothing else on the line, or it is a parse
// error.
func splitSections(src string) ([]rawSection, error) {
	var sections []rawSection
	var current *rawSection

	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(trimmed, "__") {
			title, ok := parseDelimiter(trimmed)
			if !ok {
				return nil, fmt.Errorf("prompt: malformed section delimiter: %q", line)
			}
			if current != nil {
				sections = append(sections, *current)
			}
			special := strings.HasPrefix(title, "*") && strings.HasSuffix(title, "*")
			cleanTitle := title
			if special {
				cleanTitle = strings.TrimSpace(strings.Trim(title, "*"))
			}
			current = &rawSection{title: cleanTitle, special: special}
			continue
		}
		if current != nil {
			current.lines = append(current.lines, line)
		}
	}
	if current != nil {
		sections = append(sections, *current)
	}
	return sections, nil
}

// parseDelimiter checks that trimmed is exactly "__<title>__" with no
// other non-whitespace content, returning the (whitespace-trimmed) title.
func parseDelimiter(trimmed string) (string, bool) {
	if !strings.HasPrefix(trimmed, "__") || !strings.HasSuffix(trimmed, "__") || len(trimmed) < 4 {
		return "", false
	}
	inner := trimmed[2 : len(trimmed)-2]
	title := strings.TrimSpace(inner)
	if title == "" {
		return "", false
	}
	return title, true
}

func (s rawSection) body() string {
	return strings.Join(s.lines, "\n")
}
