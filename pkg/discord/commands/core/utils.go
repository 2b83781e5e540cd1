package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// OptionExtractor simplifies extraction of options for Discord commands
type OptionExtractor struct {
	options  []*discordgo.ApplicationCommandInteractionDataOption
	resolved *discordgo.ApplicationCommandInteractionDataResolved
}

func NewOptionExtractor(options []*discordgo.ApplicationCommandInteractionDataOption, resolved *discordgo.ApplicationCommandInteractionDataResolved) *OptionExtractor {
	return &OptionExtractor{options: options, resolved: resolved}
}

func (e *OptionExtractor) find(name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range e.options {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

// String extracts a string option by name. Role, channel and user options
// yield their snowflake.
func (e *OptionExtractor) String(name string) string {
	if opt := e.find(name); opt != nil {
		if s, ok := opt.Value.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// StringRequired extracts a required string option
func (e *OptionExtractor) StringRequired(name string) (string, error) {
	value := e.String(name)
	if value == "" {
		return "", NewValidationError(name, fmt.Sprintf("Option '%s' is required", name))
	}
	return value, nil
}

// Bool extracts a boolean option by name
func (e *OptionExtractor) Bool(name string) bool {
	if opt := e.find(name); opt != nil {
		b, _ := opt.Value.(bool)
		return b
	}
	return false
}

// Int extracts an integer option by name. Discord sends numbers as JSON
// floats.
func (e *OptionExtractor) Int(name string) int64 {
	if opt := e.find(name); opt != nil {
		switch v := opt.Value.(type) {
		case float64:
			return int64(v)
		case int64:
			return v
		case int:
			return int64(v)
		}
	}
	return 0
}

// HasOption checks whether an option exists
func (e *OptionExtractor) HasOption(name string) bool {
	return e.find(name) != nil
}

// Role returns the resolved role for a role option, or a stub carrying
// only the ID when Discord did not resolve it.
func (e *OptionExtractor) Role(name string) *discordgo.Role {
	id := e.String(name)
	if id == "" {
		return nil
	}
	if e.resolved != nil {
		if r, ok := e.resolved.Roles[id]; ok && r != nil {
			return r
		}
	}
	return &discordgo.Role{ID: id}
}

// PermissionChecker decides who counts as a bot owner.
type PermissionChecker struct {
	owners map[string]struct{}
}

func NewPermissionChecker(ownerIDs []string) *PermissionChecker {
	pc := &PermissionChecker{owners: make(map[string]struct{}, len(ownerIDs))}
	for _, id := range ownerIDs {
		if id = strings.TrimSpace(id); id != "" {
			pc.owners[id] = struct{}{}
		}
	}
	return pc
}

// IsOwner reports whether userID is a configured bot owner.
func (pc *PermissionChecker) IsOwner(userID string) bool {
	if pc == nil || userID == "" {
		return false
	}
	_, ok := pc.owners[userID]
	return ok
}

// HasPermission gates owner-only commands.
func (pc *PermissionChecker) HasPermission(userID string) bool {
	return pc.IsOwner(userID)
}

// CompareCommands reports whether two command definitions are equivalent
// for syncing purposes.
func CompareCommands(a, b *discordgo.ApplicationCommand) bool {
	if a.Name != b.Name || a.Description != b.Description {
		return false
	}
	if !equalPerms(a.DefaultMemberPermissions, b.DefaultMemberPermissions) {
		return false
	}
	aj, _ := json.Marshal(a.Options)
	bj, _ := json.Marshal(b.Options)
	return string(aj) == string(bj)
}

func equalPerms(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

// FloatPtr returns a pointer to v; used for option bounds.
func FloatPtr(v float64) *float64 { return &v }
