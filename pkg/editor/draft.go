// Package editor holds per-user role button message drafts and renders
// them into Discord components.
package editor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/small-frappuccino/rolebuttons/pkg/buttons"
	"github.com/small-frappuccino/rolebuttons/pkg/util"
)

const (
	// MaxButtons is 4 rows of 5; the fifth row is taken by the body.
	MaxButtons    = 20
	ButtonsPerRow = 5
)

var (
	ErrTooManyButtons       = errors.New("Cannot add more buttons beyond the current 20 per message due to Discord limitations (Max 5 rows - 4x rows of 5x buttons + 1x row reserved for the main message data).")
	ErrLabelOrEmoteRequired = errors.New("Please provide either an emote or label for this button.")
	ErrInvalidEmote         = errors.New("invalid emote")
	ErrInvalidColor         = errors.New("invalid color")
	ErrNoSuchButton         = errors.New("no such button")

	ErrBodyMissing    = errors.New("Body text is missing.")
	ErrNoButtons      = errors.New("Provide at minimum 1 role button.")
	ErrMissingFaceFmt = "Button ID %d is missing both a label and emote."
)

// DraftButton is one button in a draft.
type DraftButton struct {
	Label    string
	Emote    string
	RoleID   string
	RoleName string
	Action   buttons.Action
	Silent   bool
}

// Draft is a role button message under construction.
type Draft struct {
	Body        *string
	AccentColor *string
	Buttons     []DraftButton
}

// SetBody stores text, turning typed `\n` sequences into line breaks.
func (d *Draft) SetBody(text string) string {
	body := util.ExpandEscapedNewlines(text)
	d.Body = &body
	return body
}

// SetAccentColor sets the container colour from a hex string; an empty
// string removes it, which also drops the container.
func (d *Draft) SetAccentColor(raw string) error {
	if raw == "" {
		d.AccentColor = nil
		return nil
	}
	hex, ok := util.SanitizeHex(raw)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidColor, raw)
	}
	d.AccentColor = &hex
	return nil
}

// AccentValue returns the accent colour as an integer.
func (d *Draft) AccentValue() (int, bool) {
	if d.AccentColor == nil {
		return 0, false
	}
	var v int
	if _, err := fmt.Sscanf(*d.AccentColor, "%x", &v); err != nil {
		return 0, false
	}
	return v, true
}

// AddButton appends b and returns its index.
func (d *Draft) AddButton(b DraftButton) (int, error) {
	if len(d.Buttons) >= MaxButtons {
		return -1, ErrTooManyButtons
	}
	if b.Label == "" && b.Emote == "" {
		return -1, ErrLabelOrEmoteRequired
	}
	if b.Emote != "" {
		if _, kind := util.ParseEmoji(b.Emote); kind == util.EmojiInvalid {
			return -1, fmt.Errorf("%w: %q", ErrInvalidEmote, b.Emote)
		}
	}
	if !b.Action.Valid() {
		return -1, fmt.Errorf("unknown action %d", int(b.Action))
	}
	if b.RoleID == "" {
		return -1, buttons.ErrEmptyRoleID
	}
	d.Buttons = append(d.Buttons, b)
	return len(d.Buttons) - 1, nil
}

// RemoveButton deletes the button at index i; later buttons shift down.
func (d *Draft) RemoveButton(i int) error {
	if i < 0 || i >= len(d.Buttons) {
		return fmt.Errorf("%w: %d", ErrNoSuchButton, i)
	}
	d.Buttons = append(d.Buttons[:i], d.Buttons[i+1:]...)
	return nil
}

// Validate reports the first reason the draft cannot be deployed.
func (d *Draft) Validate() error {
	switch {
	case d.Body == nil || *d.Body == "":
		return ErrBodyMissing
	case len(d.Buttons) == 0:
		return ErrNoButtons
	case len(d.Buttons) > MaxButtons:
		return fmt.Errorf("The maximum number of buttons per message is %d; there are currently %d supplied.", MaxButtons, len(d.Buttons))
	}
	for i, b := range d.Buttons {
		if b.Label == "" && b.Emote == "" {
			return fmt.Errorf(ErrMissingFaceFmt, i)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d Draft) Clone() Draft {
	out := Draft{Buttons: append([]DraftButton(nil), d.Buttons...)}
	if d.Body != nil {
		b := *d.Body
		out.Body = &b
	}
	if d.AccentColor != nil {
		c := *d.AccentColor
		out.AccentColor = &c
	}
	return out
}

// Store keeps one draft per user.
type Store interface {
	// Get returns a copy of the user's draft; an empty draft if none.
	Get(userID string) Draft
	// Update runs fn on the user's draft. Changes are kept only if fn
	// returns nil.
	Update(userID string, fn func(*Draft) error) error
	Reset(userID string)
}

// MemoryStore is a process-local Store. Drafts are lost on restart.
type MemoryStore struct {
	mu     sync.Mutex
	drafts map[string]Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]Draft)}
}

func (s *MemoryStore) Get(userID string) Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[userID].Clone()
}

func (s *MemoryStore) Update(userID string, fn func(*Draft) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.drafts[userID].Clone()
	if err := fn(&d); err != nil {
		return err
	}
	s.drafts[userID] = d
	return nil
}

func (s *MemoryStore) Reset(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, userID)
}

// Len reports how many users have a draft.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}
