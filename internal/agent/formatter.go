package agent

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"plantbot/internal/profile"
)

// timestampLayout is a 12-hour clock with AM/PM, e.g. "03:04 PM".
const timestampLayout = "03:04 PM"

// binomialPattern matches a capitalized genus followed by one or more
// lowercase epithets at the start of a scientific name value.
var binomialPattern = regexp.MustCompile(`^[A-Z][a-z]+(?: [a-z]+)+`)

// Reply is the text sent back to the chat.
type Reply struct {
	Text     string
	Markdown bool // send with the Markdown rendering mode
	Rejected bool // the model did not recognize a plant
}

// Formatter turns model output into a decorated chat reply.
type Formatter struct {
	profile *profile.Profile
	parser  *ReportParser
	now     func() time.Time
}

// NewFormatter creates a formatter. A nil now uses time.Now.
func NewFormatter(p *profile.Profile, now func() time.Time) *Formatter {
	if now == nil {
		now = time.Now
	}
	return &Formatter{
		profile: p,
		parser:  NewReportParser(p),
		now:     now,
	}
}

// Format renders text. The rejection sentence yields the fixed apology;
// anything else is parsed into a Report and rendered section by section,
// followed by the current local time.
func (f *Formatter) Format(text string) Reply {
	if strings.Contains(text, f.profile.Rejection.Phrase) {
		return Reply{Text: f.profile.Rejection.Reply, Rejected: true}
	}

	report := f.parser.Parse(text)

	var blocks []string
	if report.Empty() {
		// Nothing we recognize: pass the answer through untouched.
		blocks = append(blocks, strings.TrimSpace(text))
	} else {
		blocks = f.render(report)
	}
	blocks = append(blocks, "_"+f.now().Format(timestampLayout)+"_")

	return Reply{Text: strings.Join(blocks, "\n\n"), Markdown: true}
}

func (f *Formatter) render(r Report) []string {
	var blocks []string
	if r.Preamble != "" {
		blocks = append(blocks, r.Preamble)
	}
	for _, sec := range f.profile.Sections {
		value := r.Get(sec.Key)
		if value == "" {
			continue
		}
		if sec.Key == profile.SectionScientificName {
			value = emphasizeBinomial(value)
		}
		blocks = append(blocks, fmt.Sprintf("%s *%s* %s", sec.Glyph, sec.Label, value))
	}
	return blocks
}

// emphasizeBinomial wraps a leading "Genus species" in italics. Values that
// do not match (single word, odd casing) are returned unchanged.
func emphasizeBinomial(value string) string {
	loc := binomialPattern.FindStringIndex(value)
	if loc == nil {
		return value
	}
	return "_" + value[:loc[1]] + "_" + value[loc[1]:]
}
