package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func restErr(status, code int) error {
	e := &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
	if code != 0 {
		e.Message = &discordgo.APIErrorMessage{Code: code}
	}
	return e
}

func TestIsNotFound(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"404", restErr(http.StatusNotFound, 0), true},
		{"403", restErr(http.StatusForbidden, 0), true},
		{"unknown message code", restErr(http.StatusBadRequest, CodeUnknownMessage), true},
		{"missing access", restErr(http.StatusBadRequest, CodeMissingAccess), true},
		{"wrapped", fmt.Errorf("fetch: %w", restErr(http.StatusNotFound, CodeUnknownChannel)), true},
		{"rate limited", restErr(http.StatusTooManyRequests, 0), false},
		{"server error", restErr(http.StatusBadGateway, 0), false},
		{"plain", errors.New("dial tcp: timeout"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsNotFound(tc.err))
		})
	}
}

func TestCode(t *testing.T) {
	assert.Equal(t, CodeUnknownGuild, Code(restErr(404, CodeUnknownGuild)))
	assert.Equal(t, 0, Code(errors.New("x")))
}

func TestHandleDiscordErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	assert.Same(t, boom, HandleDiscordError("op", func() error { return boom }))
	assert.NoError(t, HandleDiscordError("op", func() error { return nil }))
	assert.Error(t, HandleDiscordError("op", nil))
}

func TestHandleConfigErrorWraps(t *testing.T) {
	boom := errors.New("boom")
	err := HandleConfigError("load", "/tmp/x.yaml", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "/tmp/x.yaml")
}
