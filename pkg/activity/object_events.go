package activity

import (
	"strings"
	"time"
)

const (
	VerbObjectCreated   = "object.created"
	VerbObjectDestroyed = "object.destroyed"
	VerbObjectAdded     = "object.added"
	VerbObjectRemoved   = "object.removed"
	VerbObjectMoved     = "object.moved"
	VerbGraphLoaded     = "graph.loaded"
	VerbGraphPatched    = "graph.patched"
)

// ObjectEventInput describes a lifecycle change of one live object.
type ObjectEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	DocumentID string
	ObjectID   string
	TypeName   string
	ParentID   string
	Property   string
	Index      any
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// GraphEventInput describes a bulk operation over a snapshot.
type GraphEventInput struct {
	ActorID      string
	UserID       string
	TenantID     string
	DocumentID   string
	RootID       string
	Nodes        int
	Operations   int
	UnknownTypes int
	Channel      string
	Metadata     map[string]any
	OccurredAt   time.Time
}

func BuildObjectCreatedEvent(input ObjectEventInput) Event {
	return buildObjectEvent(VerbObjectCreated, input)
}

func BuildObjectDestroyedEvent(input ObjectEventInput) Event {
	return buildObjectEvent(VerbObjectDestroyed, input)
}

func BuildObjectAddedEvent(input ObjectEventInput) Event {
	return buildObjectEvent(VerbObjectAdded, input)
}

func BuildObjectRemovedEvent(input ObjectEventInput) Event {
	return buildObjectEvent(VerbObjectRemoved, input)
}

func BuildObjectMovedEvent(input ObjectEventInput) Event {
	return buildObjectEvent(VerbObjectMoved, input)
}

// BuildGraphLoadedEvent reports a snapshot read into a document.
func BuildGraphLoadedEvent(input GraphEventInput) Event {
	return buildGraphEvent(VerbGraphLoaded, input)
}

// BuildGraphPatchedEvent reports a diff applied to a document.
func BuildGraphPatchedEvent(input GraphEventInput) Event {
	return buildGraphEvent(VerbGraphPatched, input)
}

func buildObjectEvent(verb string, input ObjectEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.ParentID != "" {
		metadata = ensureMetadata(metadata)
		metadata["parent_id"] = input.ParentID
	}
	if input.Property != "" {
		metadata = ensureMetadata(metadata)
		metadata["property"] = input.Property
	}
	if input.Index != nil {
		metadata = ensureMetadata(metadata)
		metadata["index"] = input.Index
	}

	objectType := strings.TrimSpace(input.TypeName)
	if objectType == "" {
		objectType = "object"
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		DocumentID: strings.TrimSpace(input.DocumentID),
		ObjectType: objectType,
		ObjectID:   strings.TrimSpace(input.ObjectID),
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func buildGraphEvent(verb string, input GraphEventInput) Event {
	metadata := ensureMetadata(cloneMap(input.Metadata))
	metadata["nodes"] = input.Nodes
	if input.Operations > 0 {
		metadata["operations"] = input.Operations
	}
	if input.UnknownTypes > 0 {
		metadata["unknown_types"] = input.UnknownTypes
	}
	if input.RootID != "" {
		metadata["root_id"] = input.RootID
	}

	objectID := strings.TrimSpace(input.DocumentID)
	if objectID == "" {
		objectID = strings.TrimSpace(input.RootID)
	}
	if objectID == "" {
		objectID = "graph"
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		DocumentID: strings.TrimSpace(input.DocumentID),
		ObjectType: "document",
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
