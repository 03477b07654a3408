package core

import "fmt"

// Event names a cursor transition hooks can observe.
type Event string

const (
	// EventInit fires once when the cursor is created, with the init args.
	EventInit Event = "init"
	// EventUp fires after every MoveUp, including no-op moves at the root.
	EventUp Event = "up"
	// EventTop fires whenever the cursor lands on the root.
	EventTop Event = "top"
	// EventSelect fires after every MoveTo.
	EventSelect Event = "select"
)

// Valid reports whether e is a known event.
func (e Event) Valid() bool {
	switch e {
	case EventInit, EventUp, EventTop, EventSelect:
		return true
	}
	return false
}

// HookFunc runs on an event. Returning an error aborts the remaining hooks
// for the event and fails the navigation call; the move itself is not
// undone.
type HookFunc func(c *Cursor, args ...any) error

func (c *Cursor) fire(event Event, args ...any) error {
	for i, fn := range c.hooks[event] {
		if err := fn(c, args...); err != nil {
			return fmt.Errorf("%s hook %d: %w", event, i, err)
		}
	}
	return nil
}
