package prompt

import "strings"

// ApplyVariables invokes every call site's function (against registry) and
// substitutes its result into the section text, walking call sites in
// reverse index order per section so earlier offsets stay valid. Function
// results are memoized per render so repeat calls are O(1).
func (p *Parsed) ApplyVariables(registry Registry) map[string]string {
	memo := make(map[string]string)
	call := func(fn string) string {
		if v, ok := memo[fn]; ok {
			return v
		}
		var v string
		if registry != nil {
			if f, ok := registry[fn]; ok {
				v = f()
			}
		}
		memo[fn] = v
		return v
	}

	out := make(map[string]string, len(p.RawSections))
	for title, text := range p.RawSections {
		sites := p.CallSites[title]
		rendered := text
		for i := len(sites) - 1; i >= 0; i-- {
			site := sites[i]
			replacement := call(site.Function)
			rendered = rendered[:site.StartIdx] + replacement + rendered[site.EndIdx:]
		}
		out[title] = rendered
	}
	return out
}

// MetaSummaryTitleKey is the Meta-section key naming which section to
// append as the "summary block" in FormatForLLM.
const MetaSummaryTitleKey = "summary_title"

// FormatForLLM concatenates rendered (post-ApplyVariables) sections named
// by titles, each optionally prefixed by "**title:**\n", separated by a
// blank line, then appends a summary block named by the Meta section's
// summary_title key. Missing titles are skipped with a warning.
func (p *Parsed) FormatForLLM(rendered map[string]string, titles []string, includeTitle, includeSummary bool) string {
	var parts []string
	for _, title := range titles {
		text, ok := rendered[title]
		if !ok {
			log.Warn("FormatForLLM: missing section", "title", title)
			continue
		}
		if includeTitle {
			parts = append(parts, "**"+title+":**\n"+text)
		} else {
			parts = append(parts, text)
		}
	}

	if includeSummary {
		if summaryTitle, ok := p.Metadata[MetaSummaryTitleKey]; ok {
			if text, ok := rendered[summaryTitle]; ok {
				if includeTitle {
					parts = append(parts, "**"+summaryTitle+":**\n"+text)
				} else {
					parts = append(parts, text)
				}
			} else {
				log.Warn("FormatForLLM: summary title not found among rendered sections", "title", summaryTitle)
			}
		}
	}

	return strings.Join(parts, "\n\n")
}
