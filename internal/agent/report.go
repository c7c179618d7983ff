package agent

import (
	"strings"

	"plantbot/internal/profile"
)

// Report is the model's answer parsed against the known section labels.
// An empty field means the model did not provide it.
type Report struct {
	Preamble       string // text before the first recognized label
	Name           string
	ScientificName string
	Colors         string
	History        string
	Care           string
}

// Get returns the value of the field identified by a profile section key.
func (r *Report) Get(key string) string {
	if f := r.field(key); f != nil {
		return *f
	}
	return ""
}

// Empty reports whether no labeled field carries a value.
func (r *Report) Empty() bool {
	return r.Name == "" && r.ScientificName == "" && r.Colors == "" && r.History == "" && r.Care == ""
}

func (r *Report) field(key string) *string {
	switch key {
	case profile.SectionName:
		return &r.Name
	case profile.SectionScientificName:
		return &r.ScientificName
	case profile.SectionColors:
		return &r.Colors
	case profile.SectionHistory:
		return &r.History
	case profile.SectionCare:
		return &r.Care
	}
	return nil
}

func (r *Report) trim() {
	r.Preamble = strings.TrimSpace(r.Preamble)
	for _, f := range []*string{&r.Name, &r.ScientificName, &r.Colors, &r.History, &r.Care} {
		*f = strings.TrimSpace(*f)
	}
}
