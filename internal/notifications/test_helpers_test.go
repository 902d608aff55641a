package notifications

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(step)
}

type staticDirectory struct {
	known map[uint]bool
}

func newStaticDirectory(userIDs ...uint) *staticDirectory {
	known := make(map[uint]bool, len(userIDs))
	for _, id := range userIDs {
		known[id] = true
	}
	return &staticDirectory{known: known}
}

func (d *staticDirectory) Exists(_ context.Context, userID uint) (bool, error) {
	return d.known[userID], nil
}

type recordingDeliverer struct {
	mu        sync.Mutex
	connected map[uint]bool
	sent      map[uint][]any
}

func newRecordingDeliverer(connected ...uint) *recordingDeliverer {
	online := make(map[uint]bool, len(connected))
	for _, id := range connected {
		online[id] = true
	}
	return &recordingDeliverer{connected: online, sent: make(map[uint][]any)}
}

func (d *recordingDeliverer) Send(userID uint, payload any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected[userID] {
		return false
	}
	d.sent[userID] = append(d.sent[userID], payload)
	return true
}

func (d *recordingDeliverer) payloads(userID uint) []any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]any(nil), d.sent[userID]...)
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "notifications.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Notification{}); err != nil {
		t.Fatalf("failed to migrate notification schema: %v", err)
	}
	return db
}

func newTestStore(t *testing.T, clock *testClock, directory UserDirectory) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{
		Database: openTestDatabase(t),
		Users:    directory,
		Clock:    clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

type dispatcherFixture struct {
	clock      *testClock
	store      *Store
	retention  *RetentionEnforcer
	deliverer  *recordingDeliverer
	dispatcher *Dispatcher
}

func newDispatcherFixture(t *testing.T, maxPerUser int, directory *staticDirectory, deliverer *recordingDeliverer) dispatcherFixture {
	t.Helper()
	clock := newTestClock()
	store := newTestStore(t, clock, directory)
	retention, err := NewRetentionEnforcer(RetentionConfig{Store: store, MaxPerUser: maxPerUser})
	if err != nil {
		t.Fatalf("failed to create retention enforcer: %v", err)
	}
	dispatcher, err := NewDispatcher(DispatcherConfig{
		Store:     store,
		Retention: retention,
		Users:     directory,
		Deliverer: deliverer,
	})
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	return dispatcherFixture{
		clock:      clock,
		store:      store,
		retention:  retention,
		deliverer:  deliverer,
		dispatcher: dispatcher,
	}
}

func mustCreate(t *testing.T, store *Store, request CreateRequest) Notification {
	t.Helper()
	record, err := store.Create(context.Background(), request)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return record
}

func titles(records []Notification) []string {
	out := make([]string, 0, len(records))
	for _, record := range records {
		out = append(out, record.Title)
	}
	return out
}
