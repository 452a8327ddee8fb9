package limiter

import (
	"fmt"
	"sync"

	"github.com/choked/choked/pkg/estimator"
	"github.com/choked/choked/pkg/rate"
	"github.com/choked/choked/pkg/store"
)

// Spec declares the limits bound to one logical key, in the string form
// used by configuration files. At least one of RequestLimit and TokenLimit
// is required; TokenEstimator is required exactly when TokenLimit is set.
type Spec struct {
	// RequestLimit is a rate description for the request-count dimension,
	// for example "50/s". Empty disables the dimension.
	RequestLimit string

	// TokenLimit is a rate description for the cost dimension, for example
	// "100000/m". Empty disables the dimension.
	TokenLimit string

	// TokenEstimator names a built-in cost estimator ("default", "openai",
	// "anthropic", "words").
	TokenEstimator string
}

// Registry owns the keyed limiters built over one shared store. It is an
// explicit object: construct as many as you need, there is no implicit
// process-wide instance.
type Registry struct {
	store store.Store
	opts  []Option

	mu         sync.RWMutex
	limiters   map[string]*Limiter
	estimators map[string]estimator.Estimator
}

// NewRegistry creates an empty registry. The options are applied to every
// limiter registered later.
func NewRegistry(s store.Store, opts ...Option) *Registry {
	return &Registry{
		store:      s,
		opts:       opts,
		limiters:   make(map[string]*Limiter),
		estimators: make(map[string]estimator.Estimator),
	}
}

// Register validates spec, builds the limiter for key, and replaces any
// previous registration of the same key. All validation errors are
// configuration errors and wrap ErrInvalidConfig.
func (r *Registry) Register(key string, spec Spec) (*Limiter, error) {
	var requests, cost rate.Limit

	if spec.RequestLimit != "" {
		limit, err := rate.ParseRate(spec.RequestLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q request limit: %w", ErrInvalidConfig, key, err)
		}
		requests = limit
	}
	if spec.TokenLimit != "" {
		limit, err := rate.ParseRate(spec.TokenLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q token limit: %w", ErrInvalidConfig, key, err)
		}
		cost = limit
	}

	var est estimator.Estimator
	if !cost.IsZero() {
		e, err := estimator.ByName(spec.TokenEstimator)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %w", ErrInvalidConfig, key, err)
		}
		est = e
	} else if spec.TokenEstimator != "" {
		return nil, fmt.Errorf("%w: key %q sets an estimator but no token limit", ErrInvalidConfig, key)
	}

	lim, err := New(r.store, key, requests, cost, r.opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[key] = lim
	if est != nil {
		r.estimators[key] = est
	} else {
		delete(r.estimators, key)
	}
	return lim, nil
}

// Limiter returns the limiter registered under key.
func (r *Registry) Limiter(key string) (*Limiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lim, ok := r.limiters[key]
	return lim, ok
}

// Estimator returns the cost estimator registered under key, if the key
// has a cost dimension.
func (r *Registry) Estimator(key string) (estimator.Estimator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	est, ok := r.estimators[key]
	return est, ok
}

// Keys returns the registered keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.limiters))
	for k := range r.limiters {
		keys = append(keys, k)
	}
	return keys
}

// Close closes the underlying store.
func (r *Registry) Close() error {
	return r.store.Close()
}
