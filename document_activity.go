package objgraph

import (
	"context"

	"github.com/goliatone/go-objgraph/pkg/activity"
)

func (d *Document) emitObject(build func(activity.ObjectEventInput) activity.Event, obj, parent *Object, property string, index Value, metadata ...map[string]any) {
	if !d.emitter.Enabled() {
		return
	}
	input := activity.ObjectEventInput{
		DocumentID: d.root.id.String(),
		ObjectID:   obj.id.String(),
		TypeName:   obj.typ.Name(),
		Property:   property,
		Index:      index.Interface(),
	}
	if parent != nil {
		input.ParentID = parent.id.String()
	}
	for _, meta := range metadata {
		for key, value := range meta {
			if input.Metadata == nil {
				input.Metadata = map[string]any{}
			}
			input.Metadata[key] = value
		}
	}
	d.emit(build(input))
}

func (d *Document) emitGraph(build func(activity.GraphEventInput) activity.Event, input activity.GraphEventInput) {
	if !d.emitter.Enabled() {
		return
	}
	input.DocumentID = d.root.id.String()
	d.emit(build(input))
}

func (d *Document) emit(event activity.Event) {
	if err := d.emitter.Emit(context.Background(), event); err != nil {
		d.logger.Log(LogEvent{
			Level:     LevelWarn,
			Component: "document",
			Message:   "activity hook failed",
			TypeName:  event.ObjectType,
			Err:       err,
		})
	}
}
