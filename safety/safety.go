// Package safety screens wellness-chat messages for crisis indicators and
// produces the fixed override reply that replaces model generation when one
// is found.
//
// Screening is a plain phrase match over normalized text. It never calls the
// model, so the override behaves the same whether or not the provider is up.
package safety

import (
	"bytes"
	"strings"
	"text/template"
	"unicode"
)

type Category int

const (
	CategoryNone Category = iota
	CategorySuicide
	CategorySelfHarm
	CategoryHarmOthers
)

func (c Category) String() string {
	switch c {
	case CategorySuicide:
		return "suicidal_ideation"
	case CategorySelfHarm:
		return "self_harm"
	case CategoryHarmOthers:
		return "harm_to_others"
	default:
		return "none"
	}
}

// WellnessInstruction is the system instruction used when screening passes.
const WellnessInstruction = `You are a supportive mental wellness companion.
Respond with a gentle, warm and non-judgmental tone.
Do not diagnose any condition and do not suggest, name or dose any medication.
Encourage healthy coping strategies and, where it fits, talking to people the user trusts.
Keep every reply under 150 words.`

var indicators = map[Category][]string{
	CategorySuicide: {
		"kill myself", "killing myself", "end my life", "ending my life", "end it all",
		"take my own life", "take my life", "suicide", "suicidal", "want to die",
		"wanna die", "better off dead", "no reason to live", "don't want to live",
		"don't want to be alive", "not worth living",
	},
	CategorySelfHarm: {
		"hurt myself", "hurting myself", "harm myself", "harming myself", "self-harm",
		"self harm", "cut myself", "cutting myself", "overdose", "starve myself",
	},
	CategoryHarmOthers: {
		"kill someone", "kill somebody", "kill him", "kill her", "kill them",
		"hurt someone", "hurt somebody", "harm someone", "hurt others", "harm others",
		"murder", "shoot someone", "stab someone",
	},
}

// checked in this order so a message mentioning both self and others is
// reported under the self-directed category.
var categoryOrder = []Category{CategorySuicide, CategorySelfHarm, CategoryHarmOthers}

var normalizedIndicators = func() map[Category][]string {
	out := make(map[Category][]string, len(indicators))
	for c, phrases := range indicators {
		for _, p := range phrases {
			out[c] = append(out[c], normalize(p))
		}
	}
	return out
}()

// normalize lower-cases s, drops apostrophes, turns every other non
// alphanumeric rune into a space and pads the result with single spaces so
// phrases only match on word boundaries.
func normalize(s string) string {
	var sb strings.Builder
	sb.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’' || r == '`':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			space = false
		default:
			if !space {
				sb.WriteByte(' ')
				space = true
			}
		}
	}
	if !space {
		sb.WriteByte(' ')
	}
	return sb.String()
}

// Detect reports the first crisis category whose indicator phrases occur
// in message.
func Detect(message string) (Category, bool) {
	text := normalize(message)
	for _, c := range categoryOrder {
		for _, p := range normalizedIndicators[c] {
			if strings.Contains(text, p) {
				return c, true
			}
		}
	}
	return CategoryNone, false
}

type Verdict struct {
	Triggered bool
	Category  Category
	Response  string
}

// Fixed sentences of the override reply, in the order they appear.
const (
	Acknowledgment       = "I'm really sorry you're feeling this way. It sounds like you are carrying something very painful, and I'm glad you told me."
	TrustedContactPrompt = "Please reach out to someone you trust, like a friend or family member, and let them know how you are feeling."
	EmergencyIntro       = "If you are in immediate danger or might act on these thoughts, contact one of these right now:"
	ProfessionalPrompt   = "Please contact a mental health professional or a trusted person immediately. You do not have to face this alone."
	Reassurance          = "Your life matters, and help is available. Things can get better with the right support."
)

var overrideTemplate = template.Must(template.New("override").Parse(
	`{{ .Acknowledgment }}

{{ .TrustedContact }}

{{ .EmergencyIntro }}
{{- range $c := .Contacts }}
- {{ $c }}
{{- end }}

{{ .Professional }}

{{ .Reassurance }}`))

type Engine struct {
	defaultLocale string
}

func NewEngine(defaultLocale string) *Engine {
	return &Engine{defaultLocale: NormalizeLocale(defaultLocale)}
}

// Screen inspects the latest user message. When it triggers, Response holds
// the complete reply for the turn and the model must not be called.
func (e *Engine) Screen(message, locale string) Verdict {
	category, ok := Detect(message)
	if !ok {
		return Verdict{}
	}
	return Verdict{
		Triggered: true,
		Category:  category,
		Response:  e.render(locale),
	}
}

func (e *Engine) render(locale string) string {
	loc := NormalizeLocale(locale)
	if loc == "" {
		loc = e.defaultLocale
	}
	out := bytes.NewBuffer(nil)
	err := overrideTemplate.Execute(out, struct {
		Acknowledgment string
		TrustedContact string
		EmergencyIntro string
		Contacts       []string
		Professional   string
		Reassurance    string
	}{
		Acknowledgment: Acknowledgment,
		TrustedContact: TrustedContactPrompt,
		EmergencyIntro: EmergencyIntro,
		Contacts:       ContactsFor(loc),
		Professional:   ProfessionalPrompt,
		Reassurance:    Reassurance,
	})
	if err != nil {
		// static template over static data; unreachable in practice
		panic(err)
	}
	return out.String()
}
