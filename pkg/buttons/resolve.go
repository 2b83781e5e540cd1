package buttons

import "fmt"

// Mutation is the role change a press requires.
type Mutation int

const (
	MutationNone Mutation = iota
	MutationAdd
	MutationRemove
)

func (m Mutation) String() string {
	switch m {
	case MutationAdd:
		return "add"
	case MutationRemove:
		return "remove"
	default:
		return "none"
	}
}

type Outcome int

const (
	OutcomeAlreadyHas Outcome = iota
	OutcomeAssigned
	OutcomeRemoved
	OutcomeAlreadyLacks
)

// Decision is the result of Resolve.
type Decision struct {
	Mutation         Mutation
	ResultingHasRole bool
	Outcome          Outcome
}

// ShouldMutate reports whether a role API call is needed.
func (d Decision) ShouldMutate() bool { return d.Mutation != MutationNone }

// Message is the reply shown to the presser.
func (d Decision) Message(roleID string) string {
	switch d.Outcome {
	case OutcomeAlreadyHas:
		return fmt.Sprintf("You already have the role <@&%s>.", roleID)
	case OutcomeAssigned:
		return fmt.Sprintf("Assigned role <@&%s>.", roleID)
	case OutcomeRemoved:
		return fmt.Sprintf("Removed role <@&%s>.", roleID)
	default:
		return fmt.Sprintf("You already don't have the role <@&%s>.", roleID)
	}
}

// User-facing failures. Internal detail goes to the logs only.
const (
	MsgRoleMissing   = "Could not assign role: Specified role seems to be missing. \nPlease contact an administrator."
	MsgMemberMissing = "Could not assign role: Your membership could not be resolved. \nPlease try again."
	MsgSystemError   = "Could not assign role: System error. \nPlease contact an administrator."
	MsgLookupFailed  = "Failed to locate info for this button. Please contact the bot administrator."
	ReplyAccentColor = 0x808080
)

// Resolve maps an action and the presser's current state to a decision.
// Unknown actions never mutate.
func Resolve(action Action, hasRole bool) Decision {
	switch action {
	case ActionAssign:
		if hasRole {
			return Decision{MutationNone, true, OutcomeAlreadyHas}
		}
		return Decision{MutationAdd, true, OutcomeAssigned}
	case ActionRemove:
		if hasRole {
			return Decision{MutationRemove, false, OutcomeRemoved}
		}
		return Decision{MutationNone, false, OutcomeAlreadyLacks}
	case ActionToggle:
		if hasRole {
			return Decision{MutationRemove, false, OutcomeRemoved}
		}
		return Decision{MutationAdd, true, OutcomeAssigned}
	default:
		if hasRole {
			return Decision{MutationNone, true, OutcomeAlreadyHas}
		}
		return Decision{MutationNone, false, OutcomeAlreadyLacks}
	}
}
