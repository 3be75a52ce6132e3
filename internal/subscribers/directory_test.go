package subscribers

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
)

// mockLogger implements logger.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, fields ...logger.Field) {}
func (m *mockLogger) Info(msg string, fields ...logger.Field)  {}
func (m *mockLogger) Warn(msg string, fields ...logger.Field)  {}
func (m *mockLogger) Error(msg string, fields ...logger.Field) {}
func (m *mockLogger) Fatal(msg string, fields ...logger.Field) {}
func (m *mockLogger) With(fields ...logger.Field) logger.Logger {
	return m
}

// memStore is an in-memory Store
type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) ScanPrefix(ctx context.Context, prefix string, fn func(key, value string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			if err := fn(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func TestAddAndListAll(t *testing.T) {
	store := newMemStore()
	dir := NewDirectory(store, &mockLogger{})
	ctx := context.Background()

	for _, id := range []string{"100", "200", "300"} {
		if err := dir.Add(ctx, id); err != nil {
			t.Fatalf("Add(%s) failed: %v", id, err)
		}
	}

	ids, err := dir.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}

	sort.Strings(ids)
	want := []string{"100", "200", "300"}
	if len(ids) != len(want) {
		t.Fatalf("got %d subscribers, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("subscriber %d = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestAddIsIdempotentOnIdentity(t *testing.T) {
	store := newMemStore()
	dir := NewDirectory(store, &mockLogger{})
	ctx := context.Background()

	if err := dir.Add(ctx, "100"); err != nil {
		t.Fatal(err)
	}
	var first Subscriber
	json.Unmarshal([]byte(store.data[subscriberKeyPrefix+"100"]), &first)

	time.Sleep(5 * time.Millisecond)
	if err := dir.Add(ctx, "100"); err != nil {
		t.Fatal(err)
	}
	var second Subscriber
	json.Unmarshal([]byte(store.data[subscriberKeyPrefix+"100"]), &second)

	ids, _ := dir.ListAll(ctx)
	if len(ids) != 1 {
		t.Fatalf("re-subscribe must not duplicate, got %d entries", len(ids))
	}
	if !second.SubscribedAt.After(first.SubscribedAt) {
		t.Errorf("re-subscribe should refresh the timestamp: %v vs %v", first.SubscribedAt, second.SubscribedAt)
	}
}

func TestAddRejectsEmptyChatID(t *testing.T) {
	dir := NewDirectory(newMemStore(), &mockLogger{})
	if err := dir.Add(context.Background(), ""); err == nil {
		t.Error("expected error for empty chat id")
	}
}

func TestListAllSkipsCorruptRecords(t *testing.T) {
	store := newMemStore()
	dir := NewDirectory(store, &mockLogger{})
	ctx := context.Background()

	dir.Add(ctx, "100")
	store.data[subscriberKeyPrefix+"bad"] = "{not json"

	ids, err := dir.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "100" {
		t.Errorf("corrupt record should be skipped, got %v", ids)
	}
}

func TestCount(t *testing.T) {
	store := newMemStore()
	dir := NewDirectory(store, &mockLogger{})
	ctx := context.Background()

	dir.Add(ctx, "1")
	dir.Add(ctx, "2")

	n, err := dir.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}
