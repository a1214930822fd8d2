package hydrate

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type point struct {
	X    int      `json:"x"`
	Y    int      `json:"y"`
	Tags []string `json:"tags"`
}

type loose struct {
	Extra any `json:"extra"`
}

func TestDecoderCases(t *testing.T) {
	ctx := Context{NodeID: "7c0e", TypeName: "Point"}

	cases := []struct {
		name      string
		input     map[string]any
		options   []DecoderOption[point]
		expect    point
		expectErr string
	}{
		{
			name:   "plain bag",
			input:  map[string]any{"x": 5, "y": -2, "tags": []any{"a", "b"}},
			expect: point{X: 5, Y: -2, Tags: []string{"a", "b"}},
		},
		{
			name:   "unknown properties ignored",
			input:  map[string]any{"x": 1, "legacy": true},
			expect: point{X: 1},
		},
		{
			name:      "unknown properties rejected",
			input:     map[string]any{"x": 1, "legacy": true},
			options:   []DecoderOption[point]{WithDisallowUnknownFields[point]()},
			expectErr: "unknown field",
		},
		{
			name:  "pre-hook renames legacy property",
			input: map[string]any{"posX": 3},
			options: []DecoderOption[point]{WithPreHook[point](func(_ Context, bag map[string]any) (map[string]any, error) {
				if v, ok := bag["posX"]; ok {
					bag["x"] = v
					delete(bag, "posX")
				}
				return bag, nil
			})},
			expect: point{X: 3},
		},
		{
			name:  "post-hook tags with node type",
			input: map[string]any{"x": 2},
			options: []DecoderOption[point]{WithPostHook[point](func(ctx Context, p *point) error {
				if len(p.Tags) == 0 {
					p.Tags = []string{ctx.TypeName}
				}
				return nil
			})},
			expect: point{X: 2, Tags: []string{"Point"}},
		},
		{
			name:  "post-hook error is wrapped",
			input: map[string]any{"x": -1},
			options: []DecoderOption[point]{WithPostHook[point](func(Context, *point) error {
				return errors.New("x must be positive")
			})},
			expectErr: "post-hook for node Point/7c0e failed: x must be positive",
		},
		{
			name:  "custom decoder",
			input: map[string]any{"encoded": `{"x":9,"y":8}`},
			options: []DecoderOption[point]{WithCustomDecoder[point](func(_ Context, bag map[string]any) (point, error) {
				var out point
				err := json.Unmarshal([]byte(bag["encoded"].(string)), &out)
				return out, err
			})},
			expect: point{X: 9, Y: 8},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := NewDecoder[point](tc.options...).Decode(ctx, tc.input)
			if tc.expectErr != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.expectErr)
				}
				if !strings.Contains(err.Error(), tc.expectErr) {
					t.Fatalf("expected error containing %q, got %v", tc.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			if !reflect.DeepEqual(tc.expect, result) {
				t.Fatalf("decoded mismatch:\nwant: %#v\n got: %#v", tc.expect, result)
			}
		})
	}
}

func TestDecoderRejectsNilBag(t *testing.T) {
	_, err := NewDecoder[point]().Decode(Context{NodeID: "n1"}, nil)
	if err == nil || !strings.Contains(err.Error(), "property bag is nil for node n1") {
		t.Fatalf("expected nil bag error, got %v", err)
	}
}

func TestDecoderUseNumber(t *testing.T) {
	result, err := NewDecoder[loose](WithUseNumber[loose]()).Decode(Context{}, map[string]any{"extra": 12})
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if _, ok := result.Extra.(json.Number); !ok {
		t.Fatalf("expected json.Number, got %T", result.Extra)
	}
}

func TestDecoderDoesNotMutateInput(t *testing.T) {
	input := map[string]any{"posX": 1}
	hook := WithPreHook[point](func(_ Context, bag map[string]any) (map[string]any, error) {
		delete(bag, "posX")
		return bag, nil
	})
	if _, err := NewDecoder[point](hook).Decode(Context{}, input); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if _, ok := input["posX"]; !ok {
		t.Fatalf("input bag was mutated")
	}
}
