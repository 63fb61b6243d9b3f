package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mistakeknot/hivewatch/internal/core"
	"github.com/mistakeknot/hivewatch/internal/storage"
)

// Compile-time interface check.
var _ storage.Store = (*ResilientStore)(nil)

// ResilientStore wraps every method of *Store with CircuitBreaker + RetryOnBusy
// to provide resilience against transient SQLite errors (database-is-locked,
// connection failures, etc.).
type ResilientStore struct {
	inner *Store
	cb    *CircuitBreaker
}

// NewResilient creates a ResilientStore with default circuit breaker settings
// (threshold=5, resetTimeout=30s).
func NewResilient(inner *Store) *ResilientStore {
	return &ResilientStore{inner: inner, cb: NewCircuitBreaker(5, 30*time.Second)}
}

// NewResilientWithBreaker creates a ResilientStore with a custom circuit breaker.
func NewResilientWithBreaker(inner *Store, cb *CircuitBreaker) *ResilientStore {
	return &ResilientStore{inner: inner, cb: cb}
}

// CircuitBreakerState returns the current state of the circuit breaker as a string.
func (r *ResilientStore) CircuitBreakerState() string {
	return r.cb.State().String()
}

// execute runs fn through the breaker and busy-retry. Caller-fixable errors
// (validation, not-found) pass through without counting as breaker failures.
func (r *ResilientStore) execute(fn func() error) error {
	var callerErr error
	err := r.cb.Execute(func() error {
		err := RetryOnBusy(fn)
		if err != nil && isCallerError(err) {
			callerErr = err
			return nil
		}
		return err
	})
	if callerErr != nil {
		return callerErr
	}
	return err
}

func isCallerError(err error) bool {
	var ve *core.ValidationError
	return errors.As(err, &ve) || errors.Is(err, core.ErrNotFound)
}

func (r *ResilientStore) AppendEvent(ctx context.Context, ev core.Event) (core.Event, error) {
	var result core.Event
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.AppendEvent(ctx, ev)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) QueryEvents(ctx context.Context, f storage.EventFilter) ([]core.Event, error) {
	var result []core.Event
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.QueryEvents(ctx, f)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) FilterOptions(ctx context.Context) (core.FilterOptions, error) {
	var result core.FilterOptions
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.FilterOptions(ctx)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	var result int64
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.PruneEvents(ctx, before)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) RegisterAgent(ctx context.Context, sessionID, name, agentKind string) (core.Agent, error) {
	var result core.Agent
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.RegisterAgent(ctx, sessionID, name, agentKind)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) UpdateCompletion(ctx context.Context, sessionID, name string, upd core.CompletionUpdate) (bool, error) {
	var result bool
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.UpdateCompletion(ctx, sessionID, name, upd)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) SetPrompt(ctx context.Context, sessionID, name, text string) (bool, error) {
	var result bool
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.SetPrompt(ctx, sessionID, name, text)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) SetResponse(ctx context.Context, sessionID, name, text string) (bool, error) {
	var result bool
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.SetResponse(ctx, sessionID, name, text)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ListAgents(ctx context.Context, sessionID string) ([]core.Agent, error) {
	var result []core.Agent
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.ListAgents(ctx, sessionID)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) GetAgent(ctx context.Context, sessionID, name string) (core.AgentDetail, error) {
	var result core.AgentDetail
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.GetAgent(ctx, sessionID, name)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) SendMessage(ctx context.Context, sender string, body json.RawMessage) (core.Message, error) {
	var result core.Message
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.SendMessage(ctx, sender, body)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) UnreadMessages(ctx context.Context, recipient string) ([]core.Message, error) {
	var result []core.Message
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.UnreadMessages(ctx, recipient)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) RecentMessages(ctx context.Context, limit int) ([]core.Message, error) {
	var result []core.Message
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.RecentMessages(ctx, limit)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ListSessions(ctx context.Context) ([]core.SessionSummary, error) {
	var result []core.SessionSummary
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.ListSessions(ctx)
		return innerErr
	})
	return result, err
}

// Close delegates directly to the inner store without CB or retry.
func (r *ResilientStore) Close() error {
	return r.inner.Close()
}
