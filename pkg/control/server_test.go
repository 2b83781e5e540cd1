package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/small-frappuccino/rolebuttons/pkg/task"
)

type stubPruner struct {
	trigger, guildID string
	purge            bool
	err              error
}

func (s *stubPruner) PruneAs(_ context.Context, trigger, guildID string, purge bool) (int, error) {
	s.trigger, s.guildID, s.purge = trigger, guildID, purge
	if s.err != nil {
		return -1, s.err
	}
	return 7, nil
}

func TestNewServerDisabledWithoutAddr(t *testing.T) {
	assert.Nil(t, NewServer("  ", Options{}))
	var s *Server
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop(context.Background()))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "rolebuttons_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	srv := httptest.NewServer(NewServer("127.0.0.1:0", Options{Gatherer: reg}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "rolebuttons_test_total 1")
}

func TestHealthEndpoint(t *testing.T) {
	var connected atomic.Bool
	connected.Store(true)
	s := NewServer("127.0.0.1:0", Options{
		Connected:     connected.Load,
		StoredButtons: func() (int, error) { return 12, nil },
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	get := func() (int, Health) {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		var h Health
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
		return resp.StatusCode, h
	}

	code, h := get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 12, h.Buttons)

	connected.Store(false)
	code, h = get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, h.Connected)
}

func TestPruneEndpoint(t *testing.T) {
	p := &stubPruner{}
	srv := httptest.NewServer(NewServer("127.0.0.1:0", Options{Pruner: p}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/prune")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/prune?guild_id=g1&purge_missing=true", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.EqualValues(t, 7, body["removed"])
	assert.Equal(t, "g1", body["scope"])
	assert.Equal(t, "control", p.trigger)
	assert.True(t, p.purge)

	resp2, err := http.Post(srv.URL+"/v1/prune?purge_missing=maybe", "", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestPruneEndpointErrors(t *testing.T) {
	cases := map[error]int{
		task.ErrDuplicateTask:     http.StatusConflict,
		errors.New("remote down"): http.StatusInternalServerError,
	}
	for perr, want := range cases {
		srv := httptest.NewServer(NewServer("127.0.0.1:0", Options{Pruner: &stubPruner{err: perr}}).Handler())
		resp, err := http.Post(srv.URL+"/v1/prune", "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, perr.Error())
		srv.Close()
	}
}

func TestStartStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", Options{})
	require.NoError(t, s.Start())
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
}
