package engine

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/ledgerbft/node/model/flow"
)

// Message is an event together with the node it came from. Local events
// carry the receiving node's own identifier.
type Message struct {
	OriginID flow.Identifier
	Payload  interface{}
}

// UnknownMessageTypeError is returned when no handler is registered for the
// dynamic type of an event.
type UnknownMessageTypeError struct {
	Payload interface{}
}

func (e UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("no handler for message of type %T", e.Payload)
}

func IsUnknownMessageTypeError(err error) bool {
	var e UnknownMessageTypeError
	return errors.As(err, &e)
}

type route func(originID flow.Identifier, payload interface{}) error

// Router dispatches events to the handler registered for their dynamic type.
// Handlers are registered before the router is used; Route is safe for
// concurrent use afterwards.
type Router struct {
	routes map[reflect.Type]route
}

func NewRouter() *Router {
	return &Router{routes: make(map[reflect.Type]route)}
}

// Register routes events of type T to the handler. Registering a second
// handler for the same type panics.
func Register[T any](r *Router, handler func(originID flow.Identifier, event T) error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if _, exists := r.routes[typ]; exists {
		panic(fmt.Sprintf("duplicate handler for %v", typ))
	}
	r.routes[typ] = func(originID flow.Identifier, payload interface{}) error {
		return handler(originID, payload.(T))
	}
}

// RegisterLocal routes events of type T to a handler that does not care
// about the origin.
func RegisterLocal[T any](r *Router, handler func(event T) error) {
	Register(r, func(_ flow.Identifier, event T) error {
		return handler(event)
	})
}

// Handles returns whether a handler is registered for the event's type.
func (r *Router) Handles(payload interface{}) bool {
	_, ok := r.routes[reflect.TypeOf(payload)]
	return ok
}

// Route hands the event to its handler.
// Expected errors during normal operations:
//   - UnknownMessageTypeError if no handler is registered for the event's type
func (r *Router) Route(originID flow.Identifier, payload interface{}) error {
	handle, ok := r.routes[reflect.TypeOf(payload)]
	if !ok {
		return UnknownMessageTypeError{Payload: payload}
	}
	return handle(originID, payload)
}
