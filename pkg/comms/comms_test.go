package comms

import "testing"

// TestDomain verifies sender-domain extraction, which drives the orphan
// blacklist cascade. A wrong domain would blacklist the wrong sender.
func TestDomain(t *testing.T) {
	cases := []struct {
		email string
		want  string
	}{
		{"records@agency.example.gov", "agency.example.gov"},
		{"Records@AGENCY.Example.GOV", "agency.example.gov"},
		{"weird@quoted\"@real.example.com", "real.example.com"},
		{"no-at-sign", ""},
		{"trailing@", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Domain(tc.email); got != tc.want {
			t.Errorf("Domain(%q) = %q, want %q", tc.email, got, tc.want)
		}
	}
}
