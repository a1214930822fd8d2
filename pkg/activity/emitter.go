package activity

import (
	"context"
	"strings"
)

// DefaultChannel is used when neither the event nor the Config names one.
const DefaultChannel = "objgraph"

// Actor is the identity stamped on events that carry none of their own.
type Actor struct {
	ActorID  string
	UserID   string
	TenantID string
}

// Config controls emission for one document.
type Config struct {
	Enabled bool
	Channel string
	Actor   Actor

	// Verbs restricts emission to the listed verbs. Empty emits every verb.
	Verbs []string
}

// Emitter applies a Config to events before fanning them out.
type Emitter struct {
	hooks   Hooks
	enabled bool
	channel string
	actor   Actor
	verbs   map[string]struct{}
}

func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	e := &Emitter{channel: strings.TrimSpace(cfg.Channel), actor: cfg.Actor}
	if e.channel == "" {
		e.channel = DefaultChannel
	}
	for _, hook := range hooks {
		if hook != nil {
			e.hooks = append(e.hooks, hook)
		}
	}
	for _, verb := range cfg.Verbs {
		if verb = strings.TrimSpace(verb); verb != "" {
			if e.verbs == nil {
				e.verbs = make(map[string]struct{})
			}
			e.verbs[verb] = struct{}{}
		}
	}
	e.enabled = cfg.Enabled && len(e.hooks) > 0
	return e
}

// Enabled reports whether Emit reaches any hook. Callers check it before
// building events.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled
}

// Accepts reports whether events with verb pass the verb filter.
func (e *Emitter) Accepts(verb string) bool {
	if e == nil || len(e.verbs) == 0 {
		return true
	}
	_, ok := e.verbs[strings.TrimSpace(verb)]
	return ok
}

// Emit fills the default channel and actor and notifies the hooks.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() || !e.Accepts(event.Verb) {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	if event.ActorID == "" && event.UserID == "" && event.TenantID == "" {
		event.ActorID = e.actor.ActorID
		event.UserID = e.actor.UserID
		event.TenantID = e.actor.TenantID
	}
	return e.hooks.Notify(ctx, event)
}
