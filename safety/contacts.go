package safety

import (
	"strings"

	"golang.org/x/text/language"
)

var contacts = map[string][]string{
	"US": {
		"988 Suicide & Crisis Lifeline: call or text 988",
		"Emergency services: 911",
	},
	"CA": {
		"9-8-8 Suicide Crisis Helpline: call or text 988",
		"Emergency services: 911",
	},
	"IN": {
		"Tele-MANAS: 14416 or 1800-891-4416",
		"KIRAN mental health helpline: 1800-599-0019",
		"Emergency services: 112",
	},
	"GB": {
		"Samaritans: call 116 123",
		"Emergency services: 999",
	},
	"IE": {
		"Samaritans: call 116 123",
		"Emergency services: 112 or 999",
	},
	"AU": {
		"Lifeline: call 13 11 14",
		"Emergency services: 000",
	},
}

var fallbackContacts = []string{
	"Your local emergency number (for example 112 or 911)",
	"988 Suicide & Crisis Lifeline (US): call or text 988",
	"Find a helpline in your country at https://findahelpline.com",
}

// ContactsFor returns the emergency contacts for a region code, falling
// back to a generic list.
func ContactsFor(region string) []string {
	if c, ok := contacts[strings.ToUpper(region)]; ok {
		return c
	}
	return fallbackContacts
}

// NormalizeLocale accepts a bare region ("in"), a BCP 47 tag ("en-IN") or
// an Accept-Language header and returns the upper-case region, or "" when
// none is stated explicitly.
func NormalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) == 2 {
		if r, err := language.ParseRegion(s); err == nil {
			return r.String()
		}
	}
	tags, _, err := language.ParseAcceptLanguage(s)
	if err != nil {
		return ""
	}
	for _, tag := range tags {
		if r, conf := tag.Region(); conf == language.Exact {
			return r.String()
		}
	}
	return ""
}
