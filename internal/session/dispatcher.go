package session

import "context"

// Dispatcher resolves the bearer token for each outbound operation at call
// time. Operations never read token state themselves; they receive the
// token as an argument and run unauthenticated when the session has none.
type Dispatcher struct {
	mgr *Manager
}

// NewDispatcher builds a dispatcher over a session manager.
func NewDispatcher(mgr *Manager) *Dispatcher {
	return &Dispatcher{mgr: mgr}
}

// Do resolves the current token and invokes op with it.
func (d *Dispatcher) Do(ctx context.Context, op func(ctx context.Context, token string) error) error {
	token, err := d.mgr.Token(ctx)
	if err != nil {
		return err
	}
	return op(ctx, token)
}

// Call resolves the current token and invokes a value-returning operation
// with it.
func Call[T any](ctx context.Context, d *Dispatcher, op func(ctx context.Context, token string) (T, error)) (T, error) {
	token, err := d.mgr.Token(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return op(ctx, token)
}
