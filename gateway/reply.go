package gateway

import (
	"fmt"
	"net/http"
)

type Kind int

const (
	KindTextOnly Kind = iota + 1
	KindImageOnly
	KindImageWithQuestion
	KindDocumentWithQuestion
	KindWellnessChat
	KindHealthChat
)

func (k Kind) String() string {
	switch k {
	case KindTextOnly:
		return "text_only"
	case KindImageOnly:
		return "image_only"
	case KindImageWithQuestion:
		return "image_with_question"
	case KindDocumentWithQuestion:
		return "document_with_question"
	case KindWellnessChat:
		return "wellness_chat"
	case KindHealthChat:
		return "health_chat"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ResponseField is the JSON field callers of each kind read the reply from.
func (k Kind) ResponseField() string {
	switch k {
	case KindImageOnly:
		return "category"
	case KindImageWithQuestion, KindWellnessChat:
		return "response"
	case KindHealthChat:
		return "msg"
	default:
		return "message"
	}
}

type Outcome int

const (
	OutcomeAnswered Outcome = iota
	OutcomeOverride
	OutcomeUnsupportedFormat
	OutcomeMissingInput
	OutcomeInvalidInput
	OutcomeTooLarge
	OutcomeOffTopic
	OutcomeEmpty
	OutcomeUnavailable
	OutcomeProviderFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnswered:
		return "answered"
	case OutcomeOverride:
		return "override"
	case OutcomeUnsupportedFormat:
		return "unsupported_format"
	case OutcomeMissingInput:
		return "missing_input"
	case OutcomeInvalidInput:
		return "invalid_input"
	case OutcomeTooLarge:
		return "too_large"
	case OutcomeOffTopic:
		return "off_topic"
	case OutcomeEmpty:
		return "empty"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeProviderFailure:
		return "provider_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Reply is what the gateway hands back for every request; failures are
// replies too.
type Reply struct {
	Kind    Kind
	Outcome Outcome
	Text    string
}

// Envelope is the response body for the reply's kind.
func (r *Reply) Envelope() map[string]string {
	return map[string]string{r.Kind.ResponseField(): r.Text}
}

// HTTPStatus maps the outcome to a status code. Structured refusals are
// answered with 200 so callers read the message from the usual field.
func (r *Reply) HTTPStatus() int {
	switch r.Outcome {
	case OutcomeInvalidInput:
		return http.StatusBadRequest
	case OutcomeTooLarge:
		return http.StatusRequestEntityTooLarge
	case OutcomeUnavailable, OutcomeProviderFailure:
		if r.Kind == KindHealthChat {
			return http.StatusInternalServerError
		}
		if r.Outcome == OutcomeUnavailable {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}
