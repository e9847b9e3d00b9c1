package scheduler

import (
	"context"
	"sync"

	"github.com/rrflink/sbcd/pkg/gcode"
)

// InterceptPhase is the point in a code's lifetime an Intercept-mode
// IPC connection may be offered it.
type InterceptPhase int

const (
	InterceptPre InterceptPhase = iota
	InterceptPost
	InterceptExecuted
)

// InterceptVerdict is an interceptor's decision about an offered code.
type InterceptVerdict int

const (
	// InterceptIgnored means the interceptor's filter didn't match;
	// the scheduler proceeds as if no interceptor were attached.
	InterceptIgnored InterceptVerdict = iota
	// InterceptResolved means the interceptor supplied the code's
	// reply itself; the scheduler finishes it without sending to
	// firmware.
	InterceptResolved
	// InterceptCancelled means the interceptor rejected the code; the
	// scheduler fails it without sending to firmware.
	InterceptCancelled
)

// Interceptor is one registered Intercept-mode connection's filter and
// decision channel. pkg/ipc constructs these; the scheduler only calls
// Offer.
type Interceptor interface {
	// Offer presents code at phase. It returns InterceptIgnored if the
	// interceptor's filter doesn't match this code, otherwise blocks
	// until the connection resolves, cancels, or ctx is done.
	Offer(ctx context.Context, code *gcode.Code, phase InterceptPhase) (InterceptVerdict, string, error)
}

// InterceptorRegistry fans a code offer out to every registered
// Interceptor in registration order, stopping at the first one that
// doesn't ignore it.
type InterceptorRegistry struct {
	mu   sync.Mutex
	list []Interceptor
}

// NewInterceptorRegistry returns an empty registry.
func NewInterceptorRegistry() *InterceptorRegistry {
	return &InterceptorRegistry{}
}

// RegisterInterceptor adds i, satisfying pkg/ipc.InterceptRegistry.
func (r *InterceptorRegistry) RegisterInterceptor(i Interceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, i)
}

// UnregisterInterceptor removes i.
func (r *InterceptorRegistry) UnregisterInterceptor(i Interceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for idx, existing := range r.list {
		if existing == i {
			r.list = append(r.list[:idx], r.list[idx+1:]...)
			return
		}
	}
}

func (r *InterceptorRegistry) snapshot() []Interceptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Interceptor, len(r.list))
	copy(out, r.list)
	return out
}

// Offer presents code to every registered interceptor until one
// doesn't ignore it.
func (r *InterceptorRegistry) Offer(ctx context.Context, code *gcode.Code, phase InterceptPhase) (InterceptVerdict, string, error) {
	for _, i := range r.snapshot() {
		verdict, reply, err := i.Offer(ctx, code, phase)
		if verdict != InterceptIgnored || err != nil {
			return verdict, reply, err
		}
	}
	return InterceptIgnored, "", nil
}
