// Package errutil classifies Discord API errors and logs failed
// operations in one place.
package errutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// Discord JSON error codes that mean the object is gone or hidden from us.
const (
	CodeUnknownChannel = 10003
	CodeUnknownGuild   = 10004
	CodeUnknownMember  = 10007
	CodeUnknownMessage = 10008
	CodeUnknownRole    = 10011
	CodeUnknownEmoji   = 10014
	CodeMissingAccess  = 50001
)

var notFoundCodes = map[int]bool{
	CodeUnknownChannel: true,
	CodeUnknownGuild:   true,
	CodeUnknownMember:  true,
	CodeUnknownMessage: true,
	CodeUnknownRole:    true,
	CodeUnknownEmoji:   true,
	CodeMissingAccess:  true,
}

// IsNotFound reports whether err says the target does not exist or is not
// visible to the bot. Anything else (rate limits, 5xx, network) is
// transient and returns false.
func IsNotFound(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return false
	}
	if rest.Message != nil && notFoundCodes[rest.Message.Code] {
		return true
	}
	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusNotFound, http.StatusForbidden:
			return true
		}
	}
	return false
}

// Code returns the Discord JSON error code carried by err, or 0.
func Code(err error) int {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil {
		return rest.Message.Code
	}
	return 0
}

// HandleDiscordError executes fn and logs any error it returns. The error
// is returned unchanged.
func HandleDiscordError(operation string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	lvl := log.DiscordLogger().Error
	if IsNotFound(err) {
		lvl = log.DiscordLogger().Warn
	}
	lvl("Discord operation failed", "operation", operation, "code", Code(err), "err", err)
	return err
}

// HandleConfigError executes fn and wraps any error with the operation and
// path it concerned.
func HandleConfigError(operation, path string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	if err := fn(); err != nil {
		log.ApplicationLogger().Error("Config operation failed", "operation", operation, "path", path, "err", err)
		return fmt.Errorf("config %s %s: %w", operation, path, err)
	}
	return nil
}
