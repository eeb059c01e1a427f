package foia

import (
	"fmt"
	"strings"

	"openrecords/pkg/agency"
)

// Placeholder tags users may leave in edited boilerplate. They are filled in
// per-agency at submission time, once the jurisdiction is known.
const (
	TagLawName    = "{ law name }"
	TagShortName  = "{ short name }"
	TagDays       = "{ number of days }"
	TagDayType    = "{ business or calendar }"
	TagAgencyName = "{ agency name }"
	TagUserName   = "{ name }"
)

// InitialCommunicationText builds the text of a request's first outbound
// communication. With edited boilerplate the user's text is used with tags
// substituted; otherwise the standard letter wraps the requested documents.
// A nil jurisdiction leaves the legal placeholders in tag form (multi-
// jurisdiction drafts are finalized per agency at submission).
func InitialCommunicationText(requestedDocs, userName string, jur *agency.Jurisdiction, agencyName string, edited, proxy bool) string {
	requestedDocs = strings.ReplaceAll(requestedDocs, TagUserName, userName)

	lawName, shortName, days, dayType := TagLawName, TagShortName, TagDays, TagDayType
	if jur != nil {
		lawName = jur.Legal
		shortName = jur.Abbrev
		if shortName == "" {
			shortName = jur.Legal
		}
		d := jur.Days
		if d == 0 {
			d = 10
		}
		days = fmt.Sprintf("%d", d)
		dayType = jur.DayType
	}

	if edited {
		if jur == nil {
			return requestedDocs
		}
		text := requestedDocs
		text = strings.ReplaceAll(text, TagLawName, lawName)
		text = strings.ReplaceAll(text, TagShortName, shortName)
		text = strings.ReplaceAll(text, TagDays, days)
		text = strings.ReplaceAll(text, TagDayType, dayType)
		if agencyName != "" {
			text = strings.ReplaceAll(text, TagAgencyName, agencyName)
		}
		return text
	}

	var b strings.Builder
	b.WriteString("To Whom It May Concern:\n\n")
	fmt.Fprintf(&b, "Pursuant to the %s, I hereby request the following records:\n\n", lawName)
	b.WriteString(requestedDocs)
	b.WriteString("\n\n")
	b.WriteString("The requested documents will be made available to the general public, " +
		"and this request is not being made for commercial purposes.\n\n")
	b.WriteString("In the event that there are fees, I would be grateful if you would " +
		"inform me of the total charges in advance of fulfilling my request. " +
		"I would prefer the request filled electronically, by e-mail attachment " +
		"if available or CD-ROM if not.\n\n")
	fmt.Fprintf(&b, "Thank you in advance for your anticipated cooperation in this matter. "+
		"I look forward to receiving your response to this request within "+
		"%s %s days, as the statute requires.\n\n", days, dayType)
	if proxy {
		b.WriteString("This request is filed by a proxy requester who satisfies the " +
			"jurisdiction's residency requirement, on behalf of the named requester.\n\n")
	}
	b.WriteString("Sincerely,\n\n")
	b.WriteString(userName)
	return b.String()
}
