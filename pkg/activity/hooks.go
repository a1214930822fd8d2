package activity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Event is one lifecycle occurrence of a document or of an object inside it.
// Identifiers travel as strings so hooks need not depend on uuid.
type Event struct {
	Verb       string
	ActorID    string
	UserID     string
	TenantID   string
	DocumentID string
	ObjectType string
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Valid reports whether the event names a verb and the object it happened to.
func (e Event) Valid() bool {
	return e.Verb != "" && e.ObjectType != "" && e.ObjectID != ""
}

// ActivityHook receives normalized events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc adapts a function to ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans one event out to every hook.
type Hooks []ActivityHook

func (h Hooks) Enabled() bool { return len(h) > 0 }

// Notify normalizes event and hands it to each hook in order. Invalid
// events are dropped. Every hook runs even when an earlier one fails; the
// failures are joined.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}
	event = NormalizeEvent(event)
	if !event.Valid() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims identifiers, copies metadata and stamps OccurredAt
// when it is missing.
func NormalizeEvent(event Event) Event {
	for _, field := range []*string{
		&event.Verb, &event.ActorID, &event.UserID, &event.TenantID,
		&event.DocumentID, &event.ObjectType, &event.ObjectID, &event.Channel,
	} {
		*field = strings.TrimSpace(*field)
	}
	event.Metadata = cloneMap(event.Metadata)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	return event
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
