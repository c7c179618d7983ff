package agent

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"plantbot/internal/profile"
)

var fixedNow = func() time.Time {
	return time.Date(2026, 10, 19, 15, 4, 0, 0, time.Local)
}

func newTestFormatter() *Formatter {
	return NewFormatter(profile.Default(), fixedNow)
}

func TestFormat_Rejection(t *testing.T) {
	in := "I couldn't identify a plant in this image. Please send a clearer image of a plant."
	got := newTestFormatter().Format(in)

	want := "❌ I couldn't identify a plant in this image. Please send a clearer image of a plant."
	if got.Text != want {
		t.Fatalf("expected %q, got %q", want, got.Text)
	}
	if got.Markdown {
		t.Fatal("rejection reply should be plain text")
	}
	if !got.Rejected {
		t.Fatal("expected Rejected=true")
	}
}

func TestFormat_RejectionIsCaseSensitive(t *testing.T) {
	got := newTestFormatter().Format("i couldn't identify a plant in this image.")
	if got.Rejected {
		t.Fatal("lowercase phrase should not count as a rejection")
	}
}

func TestFormat_FiveSections(t *testing.T) {
	in := "Name: Rose\nScientific Name: Rosa damascena\nColors: Red\nBrief History: ...\nTreatment Plan: ..."
	got := newTestFormatter().Format(in)

	want := "🌿 *Name:* Rose" +
		"\n\n🌱 *Scientific Name:* _Rosa damascena_" +
		"\n\n🎨 *Colors:* Red" +
		"\n\n📚 *Brief History:* ..." +
		"\n\n💧 *Treatment Plan:* ..." +
		"\n\n_03:04 PM_"
	if got.Text != want {
		t.Fatalf("unexpected reply:\n%s\n--- want ---\n%s", got.Text, want)
	}
	if !got.Markdown {
		t.Fatal("expected Markdown reply")
	}
}

func TestFormat_ModelAnswerShapes(t *testing.T) {
	want := "🌿 *Name:* Rose" +
		"\n\n🌱 *Scientific Name:* _Rosa damascena_" +
		"\n\n🎨 *Colors:* Red" +
		"\n\n📚 *Brief History:* Old." +
		"\n\n💧 *Treatment Plan:* Water." +
		"\n\n_03:04 PM_"

	cases := map[string]string{
		"numbered":           "1. Name: Rose\n2. Scientific Name: Rosa damascena\n3. Colors: Red\n4. Brief History: Old.\n5. Treatment Plan: Water.",
		"bold colon outside": "**Name**: Rose\n**Scientific Name**: Rosa damascena\n**Colors**: Red\n**Brief History**: Old.\n**Treatment Plan**: Water.",
		"inline":             "Name: Rose Scientific Name: Rosa damascena Colors: Red Brief History: Old. Treatment Plan: Water.",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			got := newTestFormatter().Format(in)
			if got.Text != want {
				t.Fatalf("unexpected reply:\n%s\n--- want ---\n%s", got.Text, want)
			}
		})
	}
}

func TestFormat_TimestampPattern(t *testing.T) {
	in := "Name: Rose\nScientific Name: Rosa damascena"
	got := NewFormatter(profile.Default(), nil).Format(in)
	if !regexp.MustCompile(`\n\n_\d{2}:\d{2} (AM|PM)_$`).MatchString(got.Text) {
		t.Fatalf("missing trailing timestamp in %q", got.Text)
	}
}

func TestFormat_SingleWordScientificName(t *testing.T) {
	got := newTestFormatter().Format("Name: Rose\nScientific Name: Rosa")
	if !strings.Contains(got.Text, "🌱 *Scientific Name:* Rosa\n") {
		t.Fatalf("single-word name should stay unwrapped:\n%s", got.Text)
	}
	if strings.Contains(got.Text, "_Rosa_") {
		t.Fatalf("single-word name was wrapped:\n%s", got.Text)
	}
}

func TestFormat_OddCasingLeftUnwrapped(t *testing.T) {
	got := newTestFormatter().Format("Scientific Name: ROSA Damascena")
	if strings.Contains(got.Text, "_ROSA") {
		t.Fatalf("unexpected emphasis:\n%s", got.Text)
	}
}

func TestFormat_MissingSectionsOmitted(t *testing.T) {
	got := newTestFormatter().Format("Name: Aloe\nTreatment Plan: Little water.")
	want := "🌿 *Name:* Aloe\n\n💧 *Treatment Plan:* Little water.\n\n_03:04 PM_"
	if got.Text != want {
		t.Fatalf("expected %q, got %q", want, got.Text)
	}
}

func TestFormat_ReorderedSectionsRenderInFixedOrder(t *testing.T) {
	got := newTestFormatter().Format("Colors: Yellow\nName: Sunflower")
	if strings.Index(got.Text, "*Name:*") > strings.Index(got.Text, "*Colors:*") {
		t.Fatalf("Name should precede Colors:\n%s", got.Text)
	}
}

func TestFormat_UnlabeledTextPassesThrough(t *testing.T) {
	got := newTestFormatter().Format("  Probably a cactus.  ")
	want := "Probably a cactus.\n\n_03:04 PM_"
	if got.Text != want {
		t.Fatalf("expected %q, got %q", want, got.Text)
	}
}

func TestEmphasizeBinomial(t *testing.T) {
	cases := map[string]string{
		"Rosa damascena":             "_Rosa damascena_",
		"Ficus elastica var. decora": "_Ficus elastica var_. decora",
		"Rosa":                       "Rosa",
		"rosa damascena":             "rosa damascena",
		"Monstera deliciosa (Swiss)": "_Monstera deliciosa_ (Swiss)",
		"":                           "",
	}
	for in, want := range cases {
		if got := emphasizeBinomial(in); got != want {
			t.Fatalf("emphasizeBinomial(%q) = %q, want %q", in, got, want)
		}
	}
}
