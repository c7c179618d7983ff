// Package profile loads the bot profile: the inference prompt, the section
// labels the model is asked to produce, and every user-visible message.
package profile

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Section keys understood by the report parser.
const (
	SectionName           = "name"
	SectionScientificName = "scientific_name"
	SectionColors         = "colors"
	SectionHistory        = "history"
	SectionCare           = "care"
)

var requiredSections = []string{
	SectionName, SectionScientificName, SectionColors, SectionHistory, SectionCare,
}

type Profile struct {
	Name      string    `yaml:"name"`
	Prompt    string    `yaml:"prompt"`
	Rejection Rejection `yaml:"rejection"`
	Sections  []Section `yaml:"sections"`
	Messages  Messages  `yaml:"messages"`
}

type Rejection struct {
	Phrase string `yaml:"phrase"`
	Reply  string `yaml:"reply"`
}

// Section is one labeled field of the model's answer, in display order.
type Section struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"` // including the trailing colon
	Glyph string `yaml:"glyph"`
}

type Messages struct {
	Greeting  string `yaml:"greeting"` // %s is replaced with the sender's first name
	Help      string `yaml:"help"`
	SendPhoto string `yaml:"send_photo"`
	Analyzing string `yaml:"analyzing"`
	Failure   string `yaml:"failure"`
}

// Default returns the built-in profile.
func Default() *Profile {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded profile: %v", err))
	}
	return p
}

// Load reads a profile from path. An empty path yields the built-in profile.
// Fields missing from the file keep their built-in values.
func Load(path string, logger *slog.Logger) (*Profile, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := parseOver(Default(), data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	logger.Info("loaded bot profile", "name", p.Name, "path", path)
	return p, nil
}

// Parse decodes and validates a complete profile document.
func Parse(data []byte) (*Profile, error) {
	return parseOver(&Profile{}, data)
}

func parseOver(base *Profile, data []byte) (*Profile, error) {
	p := *base
	p.Sections = nil
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(p.Sections) == 0 {
		p.Sections = append([]Section(nil), base.Sections...)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that the profile can drive the formatter and the handlers.
func (p *Profile) Validate() error {
	var errs []string
	if strings.TrimSpace(p.Prompt) == "" {
		errs = append(errs, "prompt is empty")
	}
	if p.Rejection.Phrase == "" || p.Rejection.Reply == "" {
		errs = append(errs, "rejection.phrase and rejection.reply are required")
	}

	known := make(map[string]bool, len(requiredSections))
	for _, key := range requiredSections {
		known[key] = true
	}
	seen := make(map[string]bool)
	for _, s := range p.Sections {
		if !known[s.Key] {
			errs = append(errs, fmt.Sprintf("unknown section key %q", s.Key))
		}
		if !strings.HasSuffix(s.Label, ":") {
			errs = append(errs, fmt.Sprintf("section %q: label must end with ':'", s.Key))
		}
		if seen[s.Key] {
			errs = append(errs, fmt.Sprintf("section %q declared twice", s.Key))
		}
		seen[s.Key] = true
	}
	for _, key := range requiredSections {
		if !seen[key] {
			errs = append(errs, fmt.Sprintf("missing section %q", key))
		}
	}

	m := p.Messages
	if m.Greeting == "" || m.Help == "" || m.SendPhoto == "" || m.Analyzing == "" || m.Failure == "" {
		errs = append(errs, "all messages (greeting, help, send_photo, analyzing, failure) are required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid profile:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Section returns the section with the given key.
func (p *Profile) Section(key string) (Section, bool) {
	for _, s := range p.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

// Greeting renders the /start reply for the given first name.
func (p *Profile) Greeting(firstName string) string {
	if strings.Contains(p.Messages.Greeting, "%s") {
		return fmt.Sprintf(p.Messages.Greeting, firstName)
	}
	return p.Messages.Greeting
}
