// Package prompt assembles the ordered, role-tagged turns sent to the model
// for a single generation call.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

type Role int

const (
	RoleSystem Role = iota
	RoleUser
	RoleModel
)

func (r Role) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleUser:
		return "user"
	case RoleModel:
		return "model"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole maps the role vocabularies callers use onto the canonical roles.
// "assistant" and "model" both mean the model's own prior replies.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, nil
	case "assistant", "model":
		return RoleModel, nil
	default:
		return 0, &UnknownRoleError{Role: s}
	}
}

type UnknownRoleError struct {
	Role string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role %q", e.Role)
}

type Image struct {
	MIMEType string
	Data     []byte
}

type Turn struct {
	Role   Role
	Texts  []string
	Images []Image
}

// Text joins the text segments of the turn.
func (t *Turn) Text() string {
	return strings.Join(t.Texts, "\n")
}

// Message is one prior conversation entry in canonical form.
type Message struct {
	Role Role
	Text string
}

// Prompt is an ordered list of turns. A valid prompt is non-empty, has at
// most one system turn which is then first, and ends with a user turn.
type Prompt struct {
	Turns []Turn
}

var (
	ErrEmptyPrompt     = errors.New("prompt has no turns")
	ErrEmptyTurn       = errors.New("final user turn has neither text nor image")
	ErrMisplacedSystem = errors.New("system turn must appear once and first")
	ErrNoFinalUserTurn = errors.New("prompt must end with a user turn")
)

// System returns the system instruction, or "" when there is none.
func (p *Prompt) System() string {
	if len(p.Turns) > 0 && p.Turns[0].Role == RoleSystem {
		return p.Turns[0].Text()
	}
	return ""
}

// History returns the turns between the system instruction and the final turn.
func (p *Prompt) History() []Turn {
	if len(p.Turns) == 0 {
		return nil
	}
	start := 0
	if p.Turns[0].Role == RoleSystem {
		start = 1
	}
	if start >= len(p.Turns)-1 {
		return nil
	}
	return p.Turns[start : len(p.Turns)-1]
}

// Final returns the turn the model must answer.
func (p *Prompt) Final() *Turn {
	if len(p.Turns) == 0 {
		return nil
	}
	return &p.Turns[len(p.Turns)-1]
}

func (p *Prompt) Validate() error {
	if len(p.Turns) == 0 {
		return ErrEmptyPrompt
	}
	for i, t := range p.Turns {
		if t.Role == RoleSystem && i != 0 {
			return ErrMisplacedSystem
		}
	}
	final := p.Final()
	if final.Role != RoleUser {
		return ErrNoFinalUserTurn
	}
	if len(final.Texts) == 0 && len(final.Images) == 0 {
		return ErrEmptyTurn
	}
	return nil
}
