package service

import "context"

// ServiceWrapper adapts components with their own start/stop methods to
// the Service interface.
type ServiceWrapper struct {
	name         string
	dependencies []string
	start        func(ctx context.Context) error
	stop         func(ctx context.Context) error
	check        func() bool
}

// NewServiceWrapper creates a wrapper for existing services. Nil funcs are
// treated as no-ops; a nil check reports running.
func NewServiceWrapper(
	name string,
	dependencies []string,
	startFunc func(ctx context.Context) error,
	stopFunc func(ctx context.Context) error,
	checkFunc func() bool,
) *ServiceWrapper {
	return &ServiceWrapper{
		name:         name,
		dependencies: dependencies,
		start:        startFunc,
		stop:         stopFunc,
		check:        checkFunc,
	}
}

func (w *ServiceWrapper) Name() string           { return w.name }
func (w *ServiceWrapper) Dependencies() []string { return w.dependencies }

func (w *ServiceWrapper) Start(ctx context.Context) error {
	if w.start == nil {
		return nil
	}
	return w.start(ctx)
}

func (w *ServiceWrapper) Stop(ctx context.Context) error {
	if w.stop == nil {
		return nil
	}
	return w.stop(ctx)
}

func (w *ServiceWrapper) IsRunning() bool {
	if w.check == nil {
		return true
	}
	return w.check()
}
