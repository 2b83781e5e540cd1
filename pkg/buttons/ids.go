package buttons

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Spec is the part of a draft button that determines its custom ID.
type Spec struct {
	RoleID string
	Action Action
	Silent bool
}

// IDStrategy assigns custom IDs to the buttons of one outgoing message.
// index is the button's position across all rows of the message.
type IDStrategy interface {
	ButtonID(index int, s Spec) (string, error)
	// Persistent reports whether the IDs must be saved as Records to be
	// resolvable on press.
	Persistent() bool
}

// EncodedIDs packs everything into the custom ID; nothing is stored.
type EncodedIDs struct{}

func (EncodedIDs) ButtonID(index int, s Spec) (string, error) {
	return EncodeRoleButton(Params{DedupID: index, Action: s.Action, Silent: s.Silent}, s.RoleID)
}

func (EncodedIDs) Persistent() bool { return false }

// StoredIDs issues random IDs that are only meaningful through the store.
type StoredIDs struct {
	// NewID defaults to uuid.NewString.
	NewID func() string
}

func (s StoredIDs) ButtonID(int, Spec) (string, error) {
	if s.NewID != nil {
		return s.NewID(), nil
	}
	return uuid.NewString(), nil
}

func (StoredIDs) Persistent() bool { return true }

const (
	IDModeEncoded = "encoded"
	IDModeStored  = "stored"
)

// StrategyForMode returns the IDStrategy named by a config value.
func StrategyForMode(mode string) (IDStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", IDModeEncoded:
		return EncodedIDs{}, nil
	case IDModeStored:
		return StoredIDs{}, nil
	default:
		return nil, fmt.Errorf("unknown button id mode %q", mode)
	}
}
