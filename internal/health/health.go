package health

import (
	"sync"
	"time"
)

// Status is the process-level health snapshot served by /healthz.
type Status struct {
	Healthy   bool      `json:"healthy"`
	Fatal     string    `json:"fatal,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	Uptime    string    `json:"uptime"`
}

// Registry holds process-wide health state. A fatal condition (a rejected
// upstream credential) is sticky: once set it stays until the process is
// restarted with a fixed configuration.
type Registry struct {
	mu        sync.RWMutex
	fatalErr  error
	startedAt time.Time
}

func NewRegistry() *Registry {
	return &Registry{startedAt: time.Now().UTC()}
}

// SetFatal records a non-recoverable condition. The first error wins.
func (r *Registry) SetFatal(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fatalErr == nil {
		r.fatalErr = err
	}
}

// Fatal returns the sticky fatal error, if any.
func (r *Registry) Fatal() (error, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fatalErr, r.fatalErr != nil
}

func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Status{
		Healthy:   r.fatalErr == nil,
		StartedAt: r.startedAt,
		Uptime:    time.Since(r.startedAt).Round(time.Second).String(),
	}
	if r.fatalErr != nil {
		s.Fatal = r.fatalErr.Error()
	}
	return s
}
