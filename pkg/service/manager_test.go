package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	j.events = append(j.events, e)
	j.mu.Unlock()
}

func wrapped(j *journal, name string, deps []string, startErr error) *ServiceWrapper {
	return NewServiceWrapper(name, deps,
		func(context.Context) error {
			j.add("start " + name)
			return startErr
		},
		func(context.Context) error {
			j.add("stop " + name)
			return nil
		},
		nil,
	)
}

func TestStartAllFollowsDependencies(t *testing.T) {
	j := &journal{}
	sm := NewServiceManager()
	require.NoError(t, sm.Register(wrapped(j, "control", []string{"prune-schedule"}, nil)))
	require.NoError(t, sm.Register(wrapped(j, "prune-schedule", nil, nil)))
	require.Error(t, sm.Register(wrapped(j, "control", nil, nil)), "duplicate name")

	require.NoError(t, sm.StartAll(context.Background()))
	assert.Equal(t, []string{"control", "prune-schedule"}, sm.GetRunningServices())
	assert.Equal(t, map[string]bool{"control": true, "prune-schedule": true}, sm.Health())

	require.NoError(t, sm.StopAll())
	assert.Equal(t, []string{
		"start prune-schedule", "start control",
		"stop control", "stop prune-schedule",
	}, j.events)
	assert.Empty(t, sm.GetRunningServices())
}

func TestStartAllRollsBackOnFailure(t *testing.T) {
	j := &journal{}
	sm := NewServiceManager()
	require.NoError(t, sm.Register(wrapped(j, "a", nil, nil)))
	require.NoError(t, sm.Register(wrapped(j, "b", []string{"a"}, errors.New("bind: address in use"))))

	err := sm.StartAll(context.Background())
	require.ErrorContains(t, err, "address in use")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, j.events)
}

func TestStartOrderRejectsBadGraphs(t *testing.T) {
	j := &journal{}
	sm := NewServiceManager()
	require.NoError(t, sm.Register(wrapped(j, "a", []string{"missing"}, nil)))
	require.Error(t, sm.StartAll(context.Background()))

	sm = NewServiceManager()
	require.NoError(t, sm.Register(wrapped(j, "a", []string{"b"}, nil)))
	require.NoError(t, sm.Register(wrapped(j, "b", []string{"a"}, nil)))
	_, err := sm.calculateStartOrder()
	require.ErrorContains(t, err, "circular")
}
