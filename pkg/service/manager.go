package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// ServiceState represents the current state of a service
type ServiceState string

const (
	StateUninitialized ServiceState = "uninitialized"
	StateRunning       ServiceState = "running"
	StateStopping      ServiceState = "stopping"
	StateStopped       ServiceState = "stopped"
	StateError         ServiceState = "error"
)

// Service is a long-running component started after the session is up.
type Service interface {
	// Name returns the unique name of the service
	Name() string

	// Dependencies returns a list of service names this service depends on
	Dependencies() []string

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// ServiceInfo holds metadata about a registered service
type ServiceInfo struct {
	Service       Service      `json:"-"`
	State         ServiceState `json:"state"`
	LastStateTime time.Time    `json:"last_state_time"`
	StartTime     *time.Time   `json:"start_time,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
}

// ServiceManager starts services in dependency order and stops them in
// reverse.
type ServiceManager struct {
	services   map[string]*ServiceInfo
	dependsOn  map[string][]string
	dependents map[string][]string
	mu         sync.RWMutex

	shutdownTimeout time.Duration
}

func NewServiceManager() *ServiceManager {
	return &ServiceManager{
		services:        make(map[string]*ServiceInfo),
		dependsOn:       make(map[string][]string),
		dependents:      make(map[string][]string),
		shutdownTimeout: 30 * time.Second,
	}
}

// Register adds a service to the manager
func (sm *ServiceManager) Register(service Service) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	name := service.Name()
	if _, exists := sm.services[name]; exists {
		return fmt.Errorf("service '%s' is already registered", name)
	}

	sm.services[name] = &ServiceInfo{
		Service:       service,
		State:         StateUninitialized,
		LastStateTime: time.Now(),
	}
	sm.dependsOn[name] = service.Dependencies()
	for _, dep := range service.Dependencies() {
		sm.dependents[dep] = append(sm.dependents[dep], name)
	}

	log.ApplicationLogger().Debug("Service registered", "service", name, "dependencies", service.Dependencies())
	return nil
}

// StartAll starts every service. On failure the ones already started are
// stopped again.
func (sm *ServiceManager) StartAll(ctx context.Context) error {
	startOrder, err := sm.calculateStartOrder()
	if err != nil {
		return fmt.Errorf("failed to calculate start order: %w", err)
	}

	for _, name := range startOrder {
		if err := sm.startService(ctx, name); err != nil {
			_ = sm.StopAll()
			return fmt.Errorf("failed to start service '%s': %w", name, err)
		}
	}

	log.ApplicationLogger().Info("All services started", "services", startOrder)
	return nil
}

// StopAll stops all services in reverse dependency order
func (sm *ServiceManager) StopAll() error {
	startOrder, err := sm.calculateStartOrder()
	if err != nil {
		return fmt.Errorf("failed to calculate stop order: %w", err)
	}

	var stopErrors []error
	for i := len(startOrder) - 1; i >= 0; i-- {
		if err := sm.StopService(startOrder[i]); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("service '%s': %w", startOrder[i], err))
		}
	}
	return errors.Join(stopErrors...)
}

func (sm *ServiceManager) startService(ctx context.Context, name string) error {
	sm.mu.Lock()
	info := sm.services[name]
	if info.State == StateRunning {
		sm.mu.Unlock()
		return nil
	}
	sm.mu.Unlock()

	err := info.Service.Start(ctx)

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if err != nil {
		info.LastError = err.Error()
		sm.updateServiceState(info, StateError)
		return err
	}
	now := time.Now()
	info.StartTime = &now
	info.LastError = ""
	sm.updateServiceState(info, StateRunning)
	log.ApplicationLogger().Info("Service started", "service", name)
	return nil
}

// StopService stops a specific service and its dependents
func (sm *ServiceManager) StopService(name string) error {
	sm.mu.Lock()
	info, exists := sm.services[name]
	if !exists {
		sm.mu.Unlock()
		return fmt.Errorf("service '%s' not found", name)
	}
	if info.State != StateRunning {
		sm.mu.Unlock()
		return nil
	}
	sm.updateServiceState(info, StateStopping)
	dependents := sm.dependents[name]
	sm.mu.Unlock()

	for _, dependent := range dependents {
		if err := sm.StopService(dependent); err != nil {
			log.ErrorLoggerRaw().Error("Failed to stop dependent service", "service", name, "dependent", dependent, "err", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()
	err := info.Service.Stop(ctx)

	sm.mu.Lock()
	if err != nil {
		info.LastError = err.Error()
	}
	sm.updateServiceState(info, StateStopped)
	sm.mu.Unlock()

	if err != nil {
		log.ErrorLoggerRaw().Error("Service stopped with errors", "service", name, "err", err)
		return err
	}
	log.ApplicationLogger().Info("Service stopped", "service", name)
	return nil
}

// GetRunningServices returns the sorted names of running services.
func (sm *ServiceManager) GetRunningServices() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var running []string
	for name, info := range sm.services {
		if info.State == StateRunning {
			running = append(running, name)
		}
	}
	sort.Strings(running)
	return running
}

// Health maps every registered service to whether it is running.
func (sm *ServiceManager) Health() map[string]bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make(map[string]bool, len(sm.services))
	for name, info := range sm.services {
		out[name] = info.State == StateRunning && info.Service.IsRunning()
	}
	return out
}

// calculateStartOrder sorts services topologically; ties break by name.
func (sm *ServiceManager) calculateStartOrder() ([]string, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	names := make([]string, 0, len(sm.services))
	for name := range sm.services {
		names = append(names, name)
	}
	sort.Strings(names)

	visited := make(map[string]bool)
	temp := make(map[string]bool)
	var order []string

	var visit func(string) error
	visit = func(name string) error {
		if temp[name] {
			return fmt.Errorf("circular dependency detected involving service '%s'", name)
		}
		if visited[name] {
			return nil
		}

		temp[name] = true
		for _, dep := range sm.dependsOn[name] {
			if _, exists := sm.services[dep]; !exists {
				return fmt.Errorf("service '%s' depends on unknown service '%s'", name, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		temp[name] = false
		visited[name] = true
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// updateServiceState updates the state of a service (assumes lock is held)
func (sm *ServiceManager) updateServiceState(info *ServiceInfo, state ServiceState) {
	info.State = state
	info.LastStateTime = time.Now()
}
