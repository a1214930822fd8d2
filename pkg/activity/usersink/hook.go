package usersink

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-objgraph/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook forwards object graph activity to a go-users ActivitySink.
//
// Object identifiers are kept as strings on the record; actor, user and
// tenant identifiers must parse as UUIDs or they are recorded as uuid.Nil.
type Hook struct {
	Sink usertypes.ActivitySink
	// ObjectTypePrefix is prepended to the reflected type name, e.g. "objgraph.".
	ObjectTypePrefix string
	// Verbs restricts forwarding to the listed verbs. Empty forwards everything.
	Verbs []string
}

// Notify maps the event into an ActivityRecord and forwards it to the sink.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}

	normalized := activity.NormalizeEvent(event)
	if !normalized.Valid() {
		return nil
	}
	if !h.accepts(normalized.Verb) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	record := usertypes.ActivityRecord{
		ActorID:    parseUUID(normalized.ActorID),
		UserID:     parseUUID(normalized.UserID),
		TenantID:   parseUUID(normalized.TenantID),
		Verb:       normalized.Verb,
		ObjectType: h.ObjectTypePrefix + normalized.ObjectType,
		ObjectID:   normalized.ObjectID,
		Channel:    normalized.Channel,
		Data:       recordData(normalized),
		OccurredAt: normalized.OccurredAt,
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now()
	}
	if record.ActorID == uuid.Nil {
		record.ActorID = record.UserID
	}

	return h.Sink.Log(ctx, record)
}

func (h Hook) accepts(verb string) bool {
	if len(h.Verbs) == 0 {
		return true
	}
	for _, candidate := range h.Verbs {
		if strings.EqualFold(strings.TrimSpace(candidate), verb) {
			return true
		}
	}
	return false
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// recordData flattens the event metadata and its document id into the
// record payload.
func recordData(event activity.Event) map[string]any {
	if len(event.Metadata) == 0 && event.DocumentID == "" {
		return nil
	}
	data := make(map[string]any, len(event.Metadata)+1)
	for key, value := range event.Metadata {
		data[key] = value
	}
	if event.DocumentID != "" {
		data["document_id"] = event.DocumentID
	}
	return data
}
