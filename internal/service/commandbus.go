package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
)

// ErrHandlerRegistered is returned when a message type already has a handler.
var ErrHandlerRegistered = errors.New("handler already registered for message type")

// Result is the explicit outcome every command handler returns.
type Result struct {
	err error
}

// Success reports that the command was applied (or was a benign no-op).
func Success() Result { return Result{} }

// Failure reports that the command could not be applied. A nil err is treated as an internal failure.
func Failure(err error) Result {
	if err == nil {
		err = apperrors.Internal("handler failed without an error")
	}
	return Result{err: err}
}

// Succeeded reports whether the delivery can be acknowledged.
func (r Result) Succeeded() bool { return r.err == nil }

// Err returns the failure cause, or nil on success.
func (r Result) Err() error { return r.err }

// Retryable reports whether redelivering the same message could succeed.
func (r Result) Retryable() bool { return apperrors.IsRetryable(r.err) }

// CommandHandler applies one decoded command type.
type CommandHandler[C model.Command] interface {
	Handle(ctx context.Context, cmd C) Result
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc[C model.Command] func(ctx context.Context, cmd C) Result

// Handle calls f.
func (f CommandHandlerFunc[C]) Handle(ctx context.Context, cmd C) Result { return f(ctx, cmd) }

type route func(ctx context.Context, body []byte) Result

// CommandBus routes raw message bodies to the handler registered for their message type.
// Routes are registered explicitly at startup; there is no discovery.
type CommandBus struct {
	mu     sync.RWMutex
	routes map[model.MessageType]route
}

// NewCommandBus returns an empty bus.
func NewCommandBus() *CommandBus {
	return &CommandBus{routes: make(map[model.MessageType]route)}
}

// Register binds messageType to h. The body of each dispatched message is decoded into C,
// normalised when C implements model.Normalizer, and validated before h runs.
func Register[C model.Command](bus *CommandBus, messageType model.MessageType, h CommandHandler[C]) error {
	if bus == nil || h == nil {
		return errors.New("command bus and handler are required")
	}
	if messageType == "" {
		return errors.New("message type is required")
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if _, exists := bus.routes[messageType]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerRegistered, messageType)
	}
	bus.routes[messageType] = func(ctx context.Context, body []byte) Result {
		var cmd C
		if err := json.Unmarshal(body, &cmd); err != nil {
			return Failure(apperrors.Wrapf(err, apperrors.ErrCodeValidation, "decode %s", messageType))
		}
		if n, ok := any(&cmd).(model.Normalizer); ok {
			n.Normalize()
		}
		if err := cmd.Validate(); err != nil {
			return Failure(err)
		}
		return h.Handle(ctx, cmd)
	}
	return nil
}

// Dispatch decodes body as messageType and runs its handler.
func (b *CommandBus) Dispatch(ctx context.Context, messageType model.MessageType, body []byte) Result {
	b.mu.RLock()
	r, ok := b.routes[messageType]
	b.mu.RUnlock()
	if !ok {
		return Failure(apperrors.Validationf("no handler registered for message type %q", messageType))
	}
	return r(ctx, body)
}

// MessageTypes lists the registered message types in sorted order.
func (b *CommandBus) MessageTypes() []model.MessageType {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.MessageType, 0, len(b.routes))
	for t := range b.routes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
