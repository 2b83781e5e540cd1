package buttons

import (
	"fmt"
	"strings"
)

// Action is what pressing a role button does to the presser's roles.
type Action int

const (
	ActionAssign Action = 0
	ActionRemove Action = 1
	ActionToggle Action = 2
)

var actionNames = map[Action]string{
	ActionAssign: "ASSIGN",
	ActionRemove: "REMOVE",
	ActionToggle: "TOGGLE",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// ParseAction accepts the command choice values ASSIGN, REMOVE and TOGGLE.
func ParseAction(s string) (Action, error) {
	for a, n := range actionNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown button action %q", s)
}

// Actions lists every action in code order.
func Actions() []Action {
	return []Action{ActionAssign, ActionRemove, ActionToggle}
}
