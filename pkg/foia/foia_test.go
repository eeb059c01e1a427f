package foia

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"openrecords/pkg/agency"
)

// TestSlugify verifies lowercasing, run collapsing and edge trimming.
func TestSlugify(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Budget Records 2024", "budget-records-2024"},
		{"  What's  going on?  ", "what-s-going-on"},
		{"---", ""},
		{"émail", "mail"},
		{"ALL CAPS", "all-caps"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.title); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

// TestSlugifyProperties checks the slug shape for arbitrary titles: only
// lowercase alphanumerics and single hyphens, never at the edges. A slug
// breaking these rules would break routing on the public site.
func TestSlugifyProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		title := rapid.String().Draw(t, "title")
		slug := Slugify(title)
		if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
			t.Fatalf("slug %q has a hyphen at an edge", slug)
		}
		if strings.Contains(slug, "--") {
			t.Fatalf("slug %q has consecutive hyphens", slug)
		}
		for _, r := range slug {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				t.Fatalf("slug %q contains %q", slug, r)
			}
		}
		if Slugify(slug) != slug {
			t.Fatalf("Slugify not idempotent on %q", slug)
		}
	})
}

// TestInitialCommunicationText verifies both letter modes: the standard
// wrapper with the jurisdiction's law filled in, and edited boilerplate with
// tags substituted.
func TestInitialCommunicationText(t *testing.T) {
	jur := &agency.Jurisdiction{
		Legal: "Example Public Records Act", Abbrev: "EPRA",
		Days: 15, DayType: "business",
	}

	t.Run("standard letter", func(t *testing.T) {
		text := InitialCommunicationText("all 2024 contracts", "Jane Doe", jur, "Dept of Examples", false, false)
		for _, want := range []string{
			"Pursuant to the Example Public Records Act",
			"all 2024 contracts",
			"within 15 business days",
			"Jane Doe",
		} {
			if !strings.Contains(text, want) {
				t.Errorf("letter missing %q:\n%s", want, text)
			}
		}
		if strings.Contains(text, "proxy requester") {
			t.Error("proxy clause present without proxy flag")
		}
	})

	t.Run("proxy clause", func(t *testing.T) {
		text := InitialCommunicationText("docs", "Jane Doe", jur, "Dept", false, true)
		if !strings.Contains(text, "proxy requester") {
			t.Error("proxy clause missing")
		}
	})

	t.Run("edited boilerplate substitutes tags", func(t *testing.T) {
		docs := "Under the " + TagLawName + " (" + TagShortName + "), " + TagAgencyName +
			" must reply in " + TagDays + " " + TagDayType + " days. From " + TagUserName + "."
		text := InitialCommunicationText(docs, "Jane Doe", jur, "Dept of Examples", true, false)
		want := "Under the Example Public Records Act (EPRA), Dept of Examples must reply in 15 business days. From Jane Doe."
		if text != want {
			t.Errorf("text = %q, want %q", text, want)
		}
	})

	t.Run("nil jurisdiction keeps tags", func(t *testing.T) {
		docs := "Reply per the " + TagLawName + "."
		text := InitialCommunicationText(docs, "Jane Doe", nil, "Dept", true, false)
		if !strings.Contains(text, TagLawName) {
			t.Errorf("tags substituted without a jurisdiction: %q", text)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		// No deadline on the books: fall back to 10 days, and the law's full
		// name stands in for a missing abbreviation.
		bare := &agency.Jurisdiction{Legal: "Sunshine Law", DayType: "calendar"}
		docs := "Cite " + TagShortName + ", deadline " + TagDays + "."
		text := InitialCommunicationText(docs, "Jane Doe", bare, "", true, false)
		if text != "Cite Sunshine Law, deadline 10." {
			t.Errorf("text = %q", text)
		}
	})
}
