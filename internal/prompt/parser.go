package prompt

import (
	"regexp"
	"strings"

	"github.com/christian-lee/callpilot/internal/logx"
)

var (
	kvLineRe      = regexp.MustCompile(`^\s*-\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)$`)
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
	identifierRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

var log = logx.Named("prompt")

// Parse runs the full parse pipeline against src, resolving Var entries
// against registry.
func Parse(src string, registry Registry) (*Parsed, error) {
	stripped, err := stripComments(src)
	if err != nil {
		return nil, err
	}
	normalized := normalizeWhitespace(stripped)

	sections, err := splitSections(normalized)
	if err != nil {
		return nil, err
	}

	p := newParsed()

	specialByTitle := map[string][]rawSection{}
	var promptSections []rawSection
	for _, sec := range sections {
		if sec.special {
			specialByTitle[sec.title] = append(specialByTitle[sec.title], sec)
			continue
		}
		promptSections = append(promptSections, sec)
	}

	p.Metadata = extractKV("Meta", specialByTitle["Meta"])
	p.Constants = extractKV("Const", specialByTitle["Const"])
	rawVars := extractKV("Var", specialByTitle["Var"])

	for name, fn := range rawVars {
		if !identifierRe.MatchString(fn) {
			log.Warn("dropping Var entry with illegal function identifier", "name", name, "function", fn)
			continue
		}
		if registry != nil {
			if _, ok := registry[fn]; !ok {
				log.Warn("dropping Var entry referencing unknown function", "name", name, "function", fn)
				continue
			}
		}
		p.VariableDefs[name] = fn
	}

	byTitle := map[string][]string{}
	var order []string
	for _, sec := range promptSections {
		if strings.Contains(sec.title, "*") {
			log.Warn("dropping prompt section with '*' in title", "title", sec.title)
			continue
		}
		body := strings.TrimSpace(sec.body())
		if body == "" {
			log.Warn("dropping empty prompt section", "title", sec.title)
			continue
		}
		if _, seen := byTitle[sec.title]; !seen {
			order = append(order, sec.title)
		}
		byTitle[sec.title] = append(byTitle[sec.title], body)
	}

	for _, title := range order {
		text := strings.Join(byTitle[title], "\n\n")
		substituted := p.substituteConstants(text)
		p.RawSections[title] = substituted
		p.CallSites[title] = p.recordCallSites(title, substituted)
	}

	return p, nil
}

// extractKV merges every instance of a special section's `- key = value`
// body lines; later instances/lines win on duplicate keys, with a warning.
func extractKV(sectionName string, instances []rawSection) map[string]string {
	out := make(map[string]string)
	for _, sec := range instances {
		for _, line := range sec.lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			m := kvLineRe.FindStringSubmatch(line)
			if m == nil {
				log.Warn("ignoring malformed line in special section", "section", sectionName, "line", line)
				continue
			}
			key, value := m[1], m[2]
			if _, exists := out[key]; exists {
				log.Warn("duplicate key in special section, later value wins", "section", sectionName, "key", key)
			}
			out[key] = value
		}
	}
	return out
}

// substituteConstants replaces {{name}} placeholders that resolve to a
// constant, inline, at parse time. Placeholders that are neither constants
// nor variables log an error and are left as literal text.
func (p *Parsed) substituteConstants(text string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := p.Constants[name]; ok {
			return v
		}
		if _, ok := p.VariableDefs[name]; ok {
			return match // left for recordCallSites to find at its own offsets
		}
		log.Error("unknown placeholder left as text", "placeholder", match)
		return match
	})
}

// recordCallSites scans the (already constant-substituted) body for
// {{name}} occurrences whose name is a registered variable, recording them
// in ascending, non-overlapping index order.
func (p *Parsed) recordCallSites(title, text string) []CallSite {
	var sites []CallSite
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[loc[2]:loc[3]]
		fn, ok := p.VariableDefs[name]
		if !ok {
			continue
		}
		sites = append(sites, CallSite{Function: fn, StartIdx: loc[0], EndIdx: loc[1]})
	}
	return sites
}
