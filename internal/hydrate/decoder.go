package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Context identifies the node a property bag was read from.
type Context struct {
	NodeID   string
	TypeName string
}

func (c Context) String() string {
	if c.TypeName == "" {
		return c.NodeID
	}
	return c.TypeName + "/" + c.NodeID
}

// PreHook rewrites the property bag before decoding, e.g. to rename fields
// recorded under an older schema.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook adjusts or validates the decoded struct.
type PostHook[T any] func(Context, *T) error

// CustomDecoder replaces JSON decoding.
type CustomDecoder[T any] func(Context, map[string]any) (T, error)

// DecoderOption configures a Decoder.
type DecoderOption[T any] func(*Decoder[T])

// Decoder turns node property bags into typed structs.
type Decoder[T any] struct {
	preHooks     []PreHook
	postHooks    []PostHook[T]
	configureDec []func(*json.Decoder)
	custom       CustomDecoder[T]
}

func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithUseNumber keeps numbers decoded into interface fields as json.Number.
func WithUseNumber[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.UseNumber()
		})
	}
}

// WithDisallowUnknownFields rejects properties the struct does not declare.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.DisallowUnknownFields()
		})
	}
}

func WithCustomDecoder[T any](decoder CustomDecoder[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.custom = decoder
	}
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode converts bag into T. The bag is copied before hooks see it.
func (d *Decoder[T]) Decode(ctx Context, bag map[string]any) (T, error) {
	var zero T
	if bag == nil {
		return zero, fmt.Errorf("hydrate: property bag is nil for node %s", ctx)
	}

	current, err := cloneBag(bag)
	if err != nil {
		return zero, fmt.Errorf("hydrate: clone properties of node %s: %w", ctx, err)
	}

	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: pre-hook for node %s failed: %w", ctx, err)
		}
		if next != nil {
			current = next
		}
	}

	var result T
	if d.custom != nil {
		if result, err = d.custom(ctx, current); err != nil {
			return zero, fmt.Errorf("hydrate: custom decoder for node %s failed: %w", ctx, err)
		}
	} else {
		buffer, err := json.Marshal(current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: marshal properties of node %s: %w", ctx, err)
		}
		decoder := json.NewDecoder(bytes.NewReader(buffer))
		for _, configure := range d.configureDec {
			configure(decoder)
		}
		if err := decoder.Decode(&result); err != nil {
			return zero, fmt.Errorf("hydrate: decode node %s: %w", ctx, err)
		}
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for node %s failed: %w", ctx, err)
		}
	}
	return result, nil
}

func cloneBag(bag map[string]any) (map[string]any, error) {
	buffer, err := json.Marshal(bag)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(buffer, &out); err != nil {
		return nil, err
	}
	return out, nil
}
