package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"barter-service/internal/apperr"
	"barter-service/internal/auth"
	"barter-service/internal/models"
	"barter-service/internal/redisclient"
	"barter-service/internal/sequence"
	"barter-service/internal/service"
	"barter-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

var (
	alice = models.Principal{ID: 10, Email: "alice@example.com"}
	bob   = models.Principal{ID: 20, Email: "bob@example.com"}
	carol = models.Principal{ID: 30, Email: "carol@example.com"}
)

type memoryKeys struct {
	mu   sync.Mutex
	keys map[string]int64
}

func (m *memoryKeys) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = 0
	return true, nil
}

func (m *memoryKeys) CompleteIdempotencyKey(ctx context.Context, key string, id int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = id
	return nil
}

func (m *memoryKeys) AbandonIdempotencyKey(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *memoryKeys) LookupIdempotencyKey(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[key]
	if ok && id == 0 {
		return 0, false, redisclient.ErrRequestInFlight
	}
	return id, ok, nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	router *gin.Engine
	auth   *auth.Authenticator
}

func setupTestServer(t *testing.T, limiter *RateLimiter, deps map[string]Pinger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewTestStore(t)
	allocator := sequence.Instrument(sequence.NewCounterAllocator(st), "sql")
	engine := service.NewTradeEngine(st, allocator, nil, &memoryKeys{keys: map[string]int64{}}, time.Hour)
	authenticator := auth.NewAuthenticator(testJWTSecret, time.Hour)
	if deps == nil {
		deps = map[string]Pinger{"database": st}
	}

	handler := NewHandler(engine, service.NewItemService(st, allocator), service.NewTradeHistory(st), authenticator, limiter, deps)
	router := gin.New()
	handler.SetupRoutes(router)

	return &testServer{router: router, auth: authenticator}
}

func (s *testServer) do(t *testing.T, method, path string, who *models.Principal, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		token, err := s.auth.GenerateToken(*who)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createItem(t *testing.T, owner models.Principal, name string) models.Item {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/items", &owner, map[string]string{
		"name":     name,
		"category": "books",
		"image":    "https://img.example.com/" + name + ".png",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var item models.Item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, fmt.Sprintf("/v1/items/%d", item.ID), w.Header().Get("Location"))
	return item
}

func decodeTrade(t *testing.T, w *httptest.ResponseRecorder) models.Trade {
	t.Helper()
	var trade models.Trade
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trade))
	return trade
}

func TestTradeFlow(t *testing.T) {
	s := setupTestServer(t, nil, nil)
	giver := s.createItem(t, alice, "chess-set")
	receiver := s.createItem(t, bob, "guitar")

	w := s.do(t, http.MethodPost, "/v1/trades", &alice, map[string]int64{
		"giver_id":    giver.ID,
		"receiver_id": receiver.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	trade := decodeTrade(t, w)
	assert.Equal(t, fmt.Sprintf("/v1/trades/%d", trade.ID), w.Header().Get("Location"))
	assert.Equal(t, models.TradeStatusWaiting, trade.Status)
	assert.Equal(t, bob.Email, trade.Receiver.OwnerEmail)

	path := fmt.Sprintf("/v1/trades/%d", trade.ID)

	w = s.do(t, http.MethodGet, path, &bob, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPatch, path+"/accept", &alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.PartyStatusAccepted, decodeTrade(t, w).Giver.Status)

	w = s.do(t, http.MethodPatch, path+"/accept", &carol, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, path+"/accept", &bob, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.TradeStatusConfirmed, decodeTrade(t, w).Status)

	w = s.do(t, http.MethodPatch, path+"/decline", &alice, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/v1/items/%d", giver.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"deleted"`)

	w = s.do(t, http.MethodGet, "/v1/users/me/trades", &bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Trades []models.Trade `json:"trades"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Trades, 1)
	assert.Equal(t, trade.ID, listed.Trades[0].ID)
}

func TestDeclineReleasesItems(t *testing.T) {
	s := setupTestServer(t, nil, nil)
	giver := s.createItem(t, alice, "chess-set")
	receiver := s.createItem(t, bob, "guitar")

	w := s.do(t, http.MethodPost, "/v1/trades", &alice, map[string]int64{"giver_id": giver.ID, "receiver_id": receiver.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	trade := decodeTrade(t, w)

	w = s.do(t, http.MethodPatch, fmt.Sprintf("/v1/trades/%d/decline", trade.ID), &bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.TradeStatusCanceled, decodeTrade(t, w).Status)

	w = s.do(t, http.MethodGet, "/v1/users/me/items", &bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "guitar")
}

func TestCreateTradeErrors(t *testing.T) {
	s := setupTestServer(t, nil, nil)
	mine := s.createItem(t, alice, "chess-set")
	alsoMine := s.createItem(t, alice, "kettle")
	theirs := s.createItem(t, bob, "guitar")
	carols := s.createItem(t, carol, "lamp")

	// lock bob's guitar in a trade with carol
	w := s.do(t, http.MethodPost, "/v1/trades", &carol, map[string]int64{"giver_id": carols.ID, "receiver_id": theirs.ID})
	require.Equal(t, http.StatusCreated, w.Code)

	tests := []struct {
		name string
		who  *models.Principal
		body any
		want int
	}{
		{"unauthenticated", nil, map[string]int64{"giver_id": mine.ID, "receiver_id": theirs.ID}, http.StatusUnauthorized},
		{"bad body", &alice, map[string]string{"giver_id": "x"}, http.StatusBadRequest},
		{"missing ids", &alice, map[string]int64{}, http.StatusBadRequest},
		{"unknown item", &alice, map[string]int64{"giver_id": mine.ID, "receiver_id": 999}, http.StatusNotFound},
		{"not the owner", &bob, map[string]int64{"giver_id": mine.ID, "receiver_id": carols.ID}, http.StatusForbidden},
		{"own item", &alice, map[string]int64{"giver_id": mine.ID, "receiver_id": alsoMine.ID}, http.StatusMethodNotAllowed},
		{"item already trading", &alice, map[string]int64{"giver_id": mine.ID, "receiver_id": theirs.ID}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/v1/trades", tt.who, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestCreateTradeIdempotencyKey(t *testing.T) {
	s := setupTestServer(t, nil, nil)
	giver := s.createItem(t, alice, "chess-set")
	receiver := s.createItem(t, bob, "guitar")
	body := map[string]int64{"giver_id": giver.ID, "receiver_id": receiver.ID}

	first := s.do(t, http.MethodPost, "/v1/trades", &alice, body, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, first.Code)
	second := s.do(t, http.MethodPost, "/v1/trades", &alice, body, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, decodeTrade(t, first).ID, decodeTrade(t, second).ID)
	assert.Equal(t, first.Header().Get("Location"), second.Header().Get("Location"))
}

func TestInvalidTokenRejected(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/items", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/items", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// a token naming only an email would share id 0 with every other such caller
	w = s.do(t, http.MethodGet, "/v1/items", &models.Principal{Email: "dave@example.com"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListItems(t *testing.T) {
	s := setupTestServer(t, nil, nil)
	s.createItem(t, alice, "chess-set")
	s.createItem(t, bob, "guitar")

	var listed struct {
		Items []models.Item `json:"items"`
	}

	w := s.do(t, http.MethodGet, "/v1/items", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Items, 2)

	w = s.do(t, http.MethodGet, "/v1/items?category=all", &alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Items, 1)
	assert.Equal(t, "guitar", listed.Items[0].Name)
}

func TestUpdateItem(t *testing.T) {
	s := setupTestServer(t, nil, nil)
	item := s.createItem(t, alice, "chess-set")
	path := fmt.Sprintf("/v1/items/%d", item.ID)

	w := s.do(t, http.MethodPatch, path, &alice, map[string]string{"name": "travel chess", "category": "games"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "travel chess")

	w = s.do(t, http.MethodPatch, path, &bob, map[string]string{"name": "stolen"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, "/v1/items/abc", &alice, map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTradeEventsEndpoint(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	w := s.do(t, http.MethodGet, "/v1/trades/5/events", &alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	giver := s.createItem(t, alice, "chess-set")
	receiver := s.createItem(t, bob, "guitar")
	w = s.do(t, http.MethodPost, "/v1/trades", &alice, map[string]int64{"giver_id": giver.ID, "receiver_id": receiver.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	trade := decodeTrade(t, w)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/v1/trades/%d/events", trade.ID), &alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"events":[]}`, w.Body.String())
}

func TestRateLimit(t *testing.T) {
	s := setupTestServer(t, NewRateLimiter(0.001, 1), nil)

	w := s.do(t, http.MethodGet, "/v1/items", &alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/v1/items", &alice, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// buckets are per caller
	w = s.do(t, http.MethodGet, "/v1/items", &bob, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadiness(t *testing.T) {
	s := setupTestServer(t, nil, nil)
	w := s.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	down := setupTestServer(t, nil, map[string]Pinger{
		"redis": pingerFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})
	w = down.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestRespondErrorHidesStorageDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/trades/1", nil)

	respondError(c, apperr.Unavailable("get trade", errors.New("dial tcp 10.0.0.5:5432: refused")))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestRateLimiterPrunesIdleBuckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("ip:10.0.0.1"))
	now = now.Add(10 * time.Minute)
	assert.True(t, l.Allow("user:20"))

	assert.Equal(t, 1, l.Prune(5*time.Minute))

	_, stale := l.limiters.Load("ip:10.0.0.1")
	_, fresh := l.limiters.Load("user:20")
	assert.False(t, stale)
	assert.True(t, fresh)

	assert.Zero(t, l.Prune(5*time.Minute))
}

func TestRateLimiterRunPrunerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewRateLimiter(1, 1).RunPruner(ctx, time.Millisecond, time.Minute), context.Canceled)
}
