package objgraph

import (
	"github.com/goliatone/go-objgraph/internal/hydrate"
)

// DecodeHook adjusts a decoded struct.
type DecodeHook[T any] func(*T) error

// DecodeNode hydrates a Go struct from the properties of node, matching
// property names against json tags. Identifiers decode as strings.
// Properties the struct does not declare are ignored.
func DecodeNode[T any](node *Node, hooks ...DecodeHook[T]) (T, error) {
	bag := make(map[string]any, len(node.Properties))
	for _, prop := range node.Properties {
		bag[prop.Name] = prop.Value.Interface()
	}
	return decodeBag(hydrate.Context{NodeID: node.ID.String(), TypeName: node.Type}, bag, hooks)
}

// DecodeObject hydrates a Go struct from the current property values of a
// live object.
func DecodeObject[T any](obj *Object, hooks ...DecodeHook[T]) (T, error) {
	props := obj.typ.AllProperties()
	bag := make(map[string]any, len(props))
	for _, prop := range props {
		if prop.Category == CategoryConstant || prop.Category == CategoryFunction {
			continue
		}
		bag[prop.Name] = obj.accessor.GetValue(prop.Name).Interface()
	}
	return decodeBag(hydrate.Context{NodeID: obj.id.String(), TypeName: obj.typ.Name()}, bag, hooks)
}

func decodeBag[T any](ctx hydrate.Context, bag map[string]any, hooks []DecodeHook[T]) (T, error) {
	opts := make([]hydrate.DecoderOption[T], 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		opts = append(opts, hydrate.WithPostHook[T](func(_ hydrate.Context, out *T) error {
			return hook(out)
		}))
	}
	return hydrate.NewDecoder[T](opts...).Decode(ctx, bag)
}
