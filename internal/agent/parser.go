package agent

import (
	"regexp"
	"sort"
	"strings"

	"plantbot/internal/profile"
)

// markerOnly matches line prefixes that carry no content: list bullets,
// ordinals ("1.", "2)"), headings, quotes, emphasis markers and emoji.
var markerOnly = regexp.MustCompile(`^[\s\-•#>*_\p{So}\p{Mn}]*(?:\d+[.)])?[\s\-•#>*_\p{So}\p{Mn}]*$`)

// ReportParser splits free-form model output into a Report.
type ReportParser struct {
	labels *regexp.Regexp
	keys   map[string]string // label text without colon -> section key
}

// NewReportParser builds a parser for the labels of the given profile.
// A label is recognized anywhere it is not glued to a preceding word, with
// optional emphasis on either side of the colon: "Name:", "**Name:**",
// "**Name**:".
func NewReportParser(p *profile.Profile) *ReportParser {
	keys := make(map[string]string, len(p.Sections))
	names := make([]string, 0, len(p.Sections))
	for _, sec := range p.Sections {
		name := strings.TrimSuffix(sec.Label, ":")
		keys[name] = sec.Key
		names = append(names, name)
	}
	// "Scientific Name" must win over its suffix "Name".
	sort.SliceStable(names, func(i, j int) bool {
		return len(names[i]) > len(names[j])
	})
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}

	// Group 1: emphasis before the label. Group 2: the label itself.
	pattern := `(?:^|[^\pL\pN*_])([*_]*)(` + strings.Join(quoted, "|") + `)[*_]*:[*_]*`
	return &ReportParser{labels: regexp.MustCompile(pattern), keys: keys}
}

// Parse assigns text to the field whose label most recently appeared. Text
// before the first label becomes the preamble. A line may hold several
// labels; a label that appears again appends its value to the same field.
func (p *ReportParser) Parse(text string) Report {
	var r Report
	var current *string
	var preamble []string

	add := func(line string) {
		if current == nil {
			preamble = append(preamble, line)
			return
		}
		*current = appendLine(*current, line)
	}

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimRight(line, " \t\r")

		matches := p.labels.FindAllStringSubmatchIndex(line, -1)
		if len(matches) == 0 {
			add(line)
			continue
		}
		if lead := line[:matches[0][2]]; !markerOnly.MatchString(lead) {
			add(strings.TrimSpace(lead))
		}
		for i, m := range matches {
			end := len(line)
			if i+1 < len(matches) {
				end = matches[i+1][2]
			}
			f := r.field(p.keys[line[m[4]:m[5]]])
			if f == nil {
				continue
			}
			current = f
			if value := strings.TrimSpace(line[m[1]:end]); value != "" {
				*current = appendLine(*current, value)
			}
		}
	}

	r.Preamble = strings.Join(preamble, "\n")
	r.trim()
	return r
}

func appendLine(field, line string) string {
	if strings.TrimSpace(field) == "" {
		return strings.TrimSpace(line)
	}
	return field + "\n" + line
}
