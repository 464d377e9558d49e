package prompt

import (
	"fmt"
	"strings"
)

// DocumentLabel prefixes document-derived text inside the final user turn.
const DocumentLabel = "Document content:"

type Input struct {
	System string
	// Document is embedded only when HasDocument is set, so that a document
	// which extracted to nothing still produces the label.
	Document    string
	HasDocument bool
	Image       *Image
	History     []Message
	Question    string
}

// Compose builds [system] -> [history, in caller order] -> [final user turn].
// History is copied role for role; consecutive turns with the same role are
// kept as they are.
func Compose(in Input) (*Prompt, error) {
	p := &Prompt{Turns: make([]Turn, 0, len(in.History)+2)}
	if s := strings.TrimSpace(in.System); s != "" {
		p.Turns = append(p.Turns, Turn{Role: RoleSystem, Texts: []string{s}})
	}
	for i, m := range in.History {
		if m.Role == RoleSystem {
			return nil, fmt.Errorf("history entry %d: %w", i, ErrMisplacedSystem)
		}
		p.Turns = append(p.Turns, Turn{Role: m.Role, Texts: []string{m.Text}})
	}

	final := Turn{Role: RoleUser}
	if text := FinalText(in.Document, in.HasDocument, in.Question); text != "" {
		final.Texts = append(final.Texts, text)
	}
	if in.Image != nil && len(in.Image.Data) > 0 {
		final.Images = append(final.Images, *in.Image)
	}
	p.Turns = append(p.Turns, final)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// FinalText is the text of the final user turn: the labelled document, if
// any, followed by the question.
func FinalText(document string, hasDocument bool, question string) string {
	question = strings.TrimSpace(question)
	if !hasDocument {
		return question
	}
	var sb strings.Builder
	sb.WriteString(DocumentLabel)
	sb.WriteString("\n")
	sb.WriteString(document)
	if question != "" {
		sb.WriteString("\n\n")
		sb.WriteString(question)
	}
	return sb.String()
}
