package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestDispatcherDeliversToConnectedUser(t *testing.T) {
	fixture := newDispatcherFixture(t, DefaultMaxPerUser, newStaticDirectory(9), newRecordingDeliverer(9))

	record, err := fixture.dispatcher.Create(context.Background(), CreateRequest{UserID: 9, Title: "T", Message: "M", Type: TypeInfo})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	payloads := fixture.deliverer.payloads(9)
	if len(payloads) != 1 {
		t.Fatalf("expected exactly one delivered payload, got %d", len(payloads))
	}
	encoded, err := json.Marshal(payloads[0])
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	var frame struct {
		Type string `json:"type"`
		Data struct {
			ID     uint   `json:"id"`
			Title  string `json:"title"`
			UserID uint   `json:"userId"`
			IsRead bool   `json:"isRead"`
		} `json:"data"`
	}
	if err := json.Unmarshal(encoded, &frame); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if frame.Type != "notification" {
		t.Fatalf("unexpected frame type %q", frame.Type)
	}
	if frame.Data.Title != "T" || frame.Data.ID != record.ID || frame.Data.UserID != 9 || frame.Data.IsRead {
		t.Fatalf("unexpected frame data: %#v", frame.Data)
	}
}

func TestDispatcherPersistsWithoutConnection(t *testing.T) {
	fixture := newDispatcherFixture(t, DefaultMaxPerUser, newStaticDirectory(11), newRecordingDeliverer())
	ctx := context.Background()

	record, err := fixture.dispatcher.Create(ctx, CreateRequest{UserID: 11, Title: "Offline"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := fixture.store.Get(ctx, record.ID); err != nil {
		t.Fatalf("expected persisted record: %v", err)
	}
	if len(fixture.deliverer.payloads(11)) != 0 {
		t.Fatalf("did not expect delivery without connection")
	}
}

func TestDispatcherRejectsUnknownUser(t *testing.T) {
	fixture := newDispatcherFixture(t, DefaultMaxPerUser, newStaticDirectory(1), newRecordingDeliverer(5))
	ctx := context.Background()

	_, err := fixture.dispatcher.Create(ctx, CreateRequest{UserID: 5, Title: "Ghost"})
	if !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
	count, err := fixture.store.CountByUser(ctx, 5)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted rows, got %d", count)
	}
	if len(fixture.deliverer.payloads(5)) != 0 {
		t.Fatalf("did not expect delivery for unknown user")
	}
}

func TestDispatcherWorksWithoutDeliverer(t *testing.T) {
	directory := newStaticDirectory(1)
	store := newTestStore(t, newTestClock(), directory)
	retention, err := NewRetentionEnforcer(RetentionConfig{Store: store})
	if err != nil {
		t.Fatalf("failed to create enforcer: %v", err)
	}
	dispatcher, err := NewDispatcher(DispatcherConfig{Store: store, Retention: retention, Users: directory})
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	if _, err := dispatcher.Create(context.Background(), CreateRequest{UserID: 1, Title: "quiet"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
}

func TestDispatcherCreateBulkSkipsFailuresAndDuplicates(t *testing.T) {
	fixture := newDispatcherFixture(t, DefaultMaxPerUser, newStaticDirectory(1, 2), newRecordingDeliverer(1))
	ctx := context.Background()

	created := fixture.dispatcher.CreateBulk(ctx, []uint{1, 1, 99, 2}, Template{Title: "Broadcast", Type: TypeInfo})
	if len(created) != 2 {
		t.Fatalf("expected 2 created notifications, got %d", len(created))
	}
	if created[0].UserID != 1 || created[1].UserID != 2 {
		t.Fatalf("unexpected recipients: %d, %d", created[0].UserID, created[1].UserID)
	}
	if len(fixture.deliverer.payloads(1)) != 1 {
		t.Fatalf("expected a single delivery to the duplicated user")
	}
}

func TestDispatcherSendTest(t *testing.T) {
	fixture := newDispatcherFixture(t, DefaultMaxPerUser, newStaticDirectory(3), newRecordingDeliverer(3))

	record, err := fixture.dispatcher.SendTest(context.Background(), 3)
	if err != nil {
		t.Fatalf("send test failed: %v", err)
	}
	if record.Type != TypeTest || record.Title != "Test Notification" {
		t.Fatalf("unexpected test notification: %#v", record)
	}
	if len(fixture.deliverer.payloads(3)) != 1 {
		t.Fatalf("expected test notification to be delivered")
	}
}

func TestNewDispatcherValidatesDependencies(t *testing.T) {
	store := newTestStore(t, newTestClock(), nil)
	retention, err := NewRetentionEnforcer(RetentionConfig{Store: store})
	if err != nil {
		t.Fatalf("failed to create enforcer: %v", err)
	}
	if _, err := NewDispatcher(DispatcherConfig{Retention: retention, Users: newStaticDirectory()}); err == nil {
		t.Fatalf("expected error for missing store")
	}
	if _, err := NewDispatcher(DispatcherConfig{Store: store, Users: newStaticDirectory()}); err == nil {
		t.Fatalf("expected error for missing retention")
	}
	if _, err := NewDispatcher(DispatcherConfig{Store: store, Retention: retention}); err == nil {
		t.Fatalf("expected error for missing user directory")
	}
}
