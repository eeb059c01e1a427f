package news

import "testing"

// TestNormalize verifies that non-breaking spaces pasted in from rich-text
// editors are flattened to regular spaces before storage.
func TestNormalize(t *testing.T) {
	a := &Article{Body: "word word   end"}
	a.Normalize()
	if a.Body != "word word   end" {
		t.Errorf("body = %q", a.Body)
	}
}

// TestByline verifies the "A, B & C" author joining.
func TestByline(t *testing.T) {
	cases := []struct {
		authors []string
		want    string
	}{
		{nil, ""},
		{[]string{"Jane Doe"}, "Jane Doe"},
		{[]string{"Jane Doe", "Bob Roe"}, "Jane Doe & Bob Roe"},
		{[]string{"Jane Doe", "Bob Roe", "Ann Poe"}, "Jane Doe, Bob Roe & Ann Poe"},
	}
	for _, tc := range cases {
		if got := Byline(tc.authors); got != tc.want {
			t.Errorf("Byline(%v) = %q, want %q", tc.authors, got, tc.want)
		}
	}
}
