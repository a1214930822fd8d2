package usersink_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-objgraph/pkg/activity"
	"github.com/goliatone/go-objgraph/pkg/activity/usersink"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

type recordingSink struct {
	records []usertypes.ActivityRecord
	err     error
}

func (s *recordingSink) Log(_ context.Context, record usertypes.ActivityRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func TestHookNotifyMapsObjectEvent(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink, ObjectTypePrefix: "objgraph."}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	tenantID := uuid.New()
	objectID := uuid.New().String()

	event := activity.BuildObjectAddedEvent(activity.ObjectEventInput{
		UserID:     userID.String(),
		TenantID:   tenantID.String(),
		DocumentID: "doc-1",
		ObjectID:   objectID,
		TypeName:   "Point",
		Property:   "Children",
		Index:      0,
		Channel:    "editor",
		OccurredAt: now,
	})

	if err := hook.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.UserID != userID || record.ActorID != userID {
		t.Fatalf("expected actor to default to user %s, got actor=%s user=%s", userID, record.ActorID, record.UserID)
	}
	if record.TenantID != tenantID {
		t.Fatalf("expected tenant %s got %s", tenantID, record.TenantID)
	}
	if record.Verb != activity.VerbObjectAdded || record.ObjectType != "objgraph.Point" || record.ObjectID != objectID {
		t.Fatalf("unexpected record payload: %+v", record)
	}
	if record.Channel != "editor" {
		t.Fatalf("expected channel editor got %q", record.Channel)
	}
	if record.OccurredAt != now {
		t.Fatalf("expected occurred_at %v got %v", now, record.OccurredAt)
	}
	if record.Data["document_id"] != "doc-1" || record.Data["property"] != "Children" {
		t.Fatalf("expected metadata passthrough got %v", record.Data)
	}
}

func TestHookNotifySkipsMissingVerb(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	_ = hook.Notify(context.Background(), activity.Event{})

	if len(sink.records) != 0 {
		t.Fatalf("expected no records for empty event, got %d", len(sink.records))
	}
}

func TestHookNotifyFiltersVerbs(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink, Verbs: []string{activity.VerbGraphPatched}}

	_ = hook.Notify(context.Background(), activity.BuildObjectCreatedEvent(activity.ObjectEventInput{ObjectID: "1"}))
	if len(sink.records) != 0 {
		t.Fatalf("expected created event to be filtered, got %d", len(sink.records))
	}

	_ = hook.Notify(context.Background(), activity.BuildGraphPatchedEvent(activity.GraphEventInput{RootID: "r", Nodes: 1}))
	if len(sink.records) != 1 {
		t.Fatalf("expected patched event forwarded, got %d", len(sink.records))
	}
}

func TestHookNotifyDefaultsTimestamp(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	err := hook.Notify(context.Background(), activity.Event{
		Verb:       activity.VerbObjectDestroyed,
		ObjectType: "Point",
		ObjectID:   "1",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	if sink.records[0].OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be defaulted")
	}
}
