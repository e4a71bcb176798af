package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"barter-service/internal/models"
	"barter-service/internal/redisclient"
	"barter-service/internal/sequence"
	"barter-service/internal/store"

	"github.com/stretchr/testify/require"
)

var (
	alice = models.Principal{ID: 10, Email: "alice@example.com"}
	bob   = models.Principal{ID: 20, Email: "bob@example.com"}
	carol = models.Principal{ID: 30, Email: "carol@example.com"}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.TradeLifecycleEvent
}

func (p *recordingPublisher) PublishTradeEvent(ctx context.Context, event *models.TradeLifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

func (p *recordingPublisher) count(eventType string) int {
	n := 0
	for _, t := range p.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

// memoryIdempotency mimics the redis key lifecycle: claimed keys are pending until completed.
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]int64
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]int64)}
}

func (m *memoryIdempotency) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = 0
	return true, nil
}

func (m *memoryIdempotency) CompleteIdempotencyKey(ctx context.Context, key string, resourceID int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = resourceID
	return nil
}

func (m *memoryIdempotency) AbandonIdempotencyKey(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *memoryIdempotency) LookupIdempotencyKey(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[key]
	if !ok {
		return 0, false, nil
	}
	if id == 0 {
		return 0, false, redisclient.ErrRequestInFlight
	}
	return id, true, nil
}

type fixture struct {
	store     *store.Store
	engine    *TradeEngine
	items     *ItemService
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewTestStore(t)
	allocator := sequence.Instrument(sequence.NewCounterAllocator(st), "sql")
	publisher := &recordingPublisher{}
	return &fixture{
		store:     st,
		engine:    NewTradeEngine(st, allocator, publisher, newMemoryIdempotency(), time.Hour),
		items:     NewItemService(st, allocator),
		publisher: publisher,
	}
}

func (f *fixture) listItem(t *testing.T, owner models.Principal, name string) *models.Item {
	t.Helper()
	item, err := f.items.CreateItem(context.Background(), &CreateItemRequest{
		Name:     name,
		Category: "books",
		Image:    "https://img.example.com/" + name + ".png",
	}, owner)
	require.NoError(t, err)
	return item
}

func (f *fixture) itemStatus(t *testing.T, id int64) string {
	t.Helper()
	item, err := f.store.GetItemByID(context.Background(), id)
	require.NoError(t, err)
	return item.Status
}

// openTrade lists one item each for alice and bob and has alice offer hers for bob's.
func (f *fixture) openTrade(t *testing.T) (*models.Trade, *models.Item, *models.Item) {
	t.Helper()
	giver := f.listItem(t, alice, "chess-set")
	receiver := f.listItem(t, bob, "guitar")
	trade, err := f.engine.CreateTrade(context.Background(), &CreateTradeRequest{
		GiverID:    giver.ID,
		ReceiverID: receiver.ID,
	}, alice)
	require.NoError(t, err)
	return trade, giver, receiver
}
