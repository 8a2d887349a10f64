package event

import "strings"

// Delimiter separates identifier segments in their serialized form.
const Delimiter = ":"

// Action is the verb segment of a lifecycle event identifier.
type Action string

const (
	ActionBook   Action = "BOOK"
	ActionAmend  Action = "AMEND"
	ActionCancel Action = "CANCEL"
	ActionVerify Action = "VERIFY"
)

// ActionFor maps an event type to the action segment used in its identifier.
func ActionFor(t Type) Action {
	switch t {
	case TypeAmended:
		return ActionAmend
	case TypeCancelled:
		return ActionCancel
	case TypeVerified:
		return ActionVerify
	default:
		return ActionBook
	}
}

// Ref is the structured form of a trade reference: {subject}:{source}:{nonce}.
type Ref struct {
	Subject string
	Source  string
	Nonce   string
}

func (r Ref) String() string {
	return r.Subject + Delimiter + r.Source + Delimiter + r.Nonce
}

// ID is the structured form of an event identifier.
// A booking has no nonce ({ref}:BOOK); later lifecycle events carry one.
type ID struct {
	Ref    Ref
	Action Action
	Nonce  string
}

func (id ID) String() string {
	return JoinID(id.Ref.String(), id.Action, id.Nonce)
}

// JoinID serializes an identifier for a trade reference already in string
// form, such as one read back from a payload.
func JoinID(ref string, a Action, nonce string) string {
	s := ref + Delimiter + string(a)
	if nonce != "" {
		s += Delimiter + nonce
	}
	return s
}

// ParseID splits a serialized identifier into its structured form.
// ok is false when s has fewer than three segments, in which case no trade
// reference can be recovered from it.
func ParseID(s string) (id ID, ok bool) {
	parts := strings.SplitN(s, Delimiter, 5)
	if len(parts) < 3 {
		return ID{}, false
	}
	id.Ref = Ref{Subject: parts[0], Source: parts[1], Nonce: parts[2]}
	if len(parts) > 3 {
		id.Action = Action(parts[3])
	}
	if len(parts) > 4 {
		id.Nonce = parts[4]
	}
	return id, true
}
