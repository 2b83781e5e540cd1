package buttons

import (
	"errors"
	"fmt"
	"strings"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// Custom ID layout for public role buttons:
//
//	P:A:<rev 2><dedup 2><action 1><silent Y|N>:<roleID>
//
// The data block has fixed widths so fields are sliced, not parsed.
const (
	NamespacePublic      = "P"
	CategoryRoleButton   = "A"
	CategoryRoleDropdown = "B"
	RevisionCurrent      = "00"

	// MaxCustomIDLength is Discord's limit on component custom IDs.
	MaxCustomIDLength = 100
	MaxDedupID        = 99

	separator     = ":"
	dataBlockSize = 6
)

var (
	ErrDedupRange      = errors.New("dedup id out of range")
	ErrEmptyRoleID     = errors.New("role id is empty")
	ErrCustomIDTooLong = errors.New("custom id exceeds 100 characters")
)

// Params are the per-button values packed into the data block.
type Params struct {
	DedupID int
	Action  Action
	Silent  bool
}

// Decoded is a successfully parsed role button custom ID.
type Decoded struct {
	Params
	RoleID string
}

// EncodeRoleButton builds the custom ID for one role button.
func EncodeRoleButton(p Params, roleID string) (string, error) {
	if p.DedupID < 0 || p.DedupID > MaxDedupID {
		return "", fmt.Errorf("%w: %d", ErrDedupRange, p.DedupID)
	}
	if !p.Action.Valid() {
		return "", fmt.Errorf("encode role button: unknown action %d", int(p.Action))
	}
	if roleID == "" {
		return "", ErrEmptyRoleID
	}
	silent := "N"
	if p.Silent {
		silent = "Y"
	}
	id := fmt.Sprintf("%s:%s:%s%02d%d%s:%s",
		NamespacePublic, CategoryRoleButton, RevisionCurrent, p.DedupID, int(p.Action), silent, roleID)
	if len(id) > MaxCustomIDLength {
		return "", fmt.Errorf("%w: %d", ErrCustomIDTooLong, len(id))
	}
	return id, nil
}

// ParseCategory returns the category of a public custom ID and the parts
// following it. ok is false for anything outside the public namespace.
func ParseCategory(raw string) (category string, rest []string, ok bool) {
	parts := strings.Split(raw, separator)
	if len(parts) < 2 || parts[0] != NamespacePublic {
		return "", nil, false
	}
	switch parts[1] {
	case CategoryRoleButton, CategoryRoleDropdown:
		return parts[1], parts[2:], true
	default:
		return "", nil, false
	}
}

// DecodeRoleButton parses a role button custom ID. It returns false for IDs
// that belong to other features; malformed role button IDs are also
// rejected, with a debug line for diagnosis.
func DecodeRoleButton(raw string) (*Decoded, bool) {
	category, rest, ok := ParseCategory(raw)
	if !ok || category != CategoryRoleButton {
		return nil, false
	}
	if len(rest) != 2 {
		debugReject(raw, "wrong number of fields")
		return nil, false
	}
	data, roleID := rest[0], rest[1]
	if len(data) != dataBlockSize {
		debugReject(raw, "data block length")
		return nil, false
	}
	if data[0:2] != RevisionCurrent {
		debugReject(raw, "unknown revision")
		return nil, false
	}

	dedup, ok := twoDigits(data[2:4])
	if !ok {
		debugReject(raw, "dedup is not two digits")
		return nil, false
	}
	if data[4] < '0' || data[4] > '9' {
		debugReject(raw, "action is not a digit")
		return nil, false
	}
	action := Action(data[4] - '0')
	if !action.Valid() {
		debugReject(raw, "unknown action code")
		return nil, false
	}
	var silent bool
	switch data[5] {
	case 'Y':
		silent = true
	case 'N':
	default:
		debugReject(raw, "silent flag is not Y or N")
		return nil, false
	}
	if roleID == "" {
		debugReject(raw, "role id is empty")
		return nil, false
	}

	return &Decoded{
		Params: Params{DedupID: dedup, Action: action, Silent: silent},
		RoleID: roleID,
	}, true
}

func twoDigits(s string) (int, bool) {
	if len(s) != 2 {
		return 0, false
	}
	for i := 0; i < 2; i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func debugReject(raw, reason string) {
	log.ApplicationLogger().Debug("Rejected role button custom id", "customID", raw, "reason", reason)
}
