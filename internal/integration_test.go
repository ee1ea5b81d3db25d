package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcel-locker-backend/config"
	"parcel-locker-backend/internal/api"
	"parcel-locker-backend/internal/db"
	"parcel-locker-backend/internal/hardware"
	"parcel-locker-backend/internal/model"
	"parcel-locker-backend/internal/notification"
	"parcel-locker-backend/internal/reservation"
	"parcel-locker-backend/internal/station"
	"parcel-locker-backend/internal/store"
)

type published struct {
	topic   string
	payload string
}

// loopbackBroker hands subscribed handlers back to the test and records publishes.
type loopbackBroker struct {
	mu        sync.Mutex
	handlers  map[string]func(string, []byte)
	published []published
}

func (b *loopbackBroker) Subscribe(topic string, handler func(string, []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *loopbackBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{topic, string(payload)})
	return nil
}

func (b *loopbackBroker) deliver(topic, payload string) {
	b.mu.Lock()
	h := b.handlers[topic]
	b.mu.Unlock()
	h(topic, []byte(payload))
}

func (b *loopbackBroker) sent() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.published...)
}

type outbox struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (o *outbox) Send(_ context.Context, msg notification.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) to(email string) []notification.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []notification.Message
	for _, m := range o.msgs {
		if m.To == email {
			out = append(out, m)
		}
	}
	return out
}

const stationReport = `{
	"station_id": "G7",
	"address": "Av. Siempre Viva 742",
	"lockers": [
		{"nickname": "1", "state": "DISPONIBLE", "is_open": false, "is_empty": true, "size": "[20x20x20]"},
		{"nickname": 2, "state": 0, "is_open": false, "is_empty": true, "sizes": "50x50x50"}
	]
}`

// TestParcelLifecycle drives one parcel from a hardware report through
// reservation, loading and collection, checking what reaches the broker and
// the mailboxes at each step.
func TestParcelLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// --- Test Setup ---
	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	mqttCfg := config.MQTTConfig{
		Topics: config.TopicsConfig{
			Detail: "pds_public_broker/detail",
			Open:   "pds_public_broker/open",
			Load:   "pds_public_broker/load",
			Unload: "pds_public_broker/unload",
		},
		CommandTimeout: time.Second,
		QueueSize:      8,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	stations := station.NewCache()
	b := &loopbackBroker{handlers: make(map[string]func(string, []byte))}
	adapter := hardware.NewAdapter(mqttCfg, b, stations)
	require.NoError(t, adapter.Subscribe())
	go adapter.Run(ctx)

	mail := &outbox{}
	pool := notification.NewWorkerPool(2, appStore, mail, nil)
	pool.Start(ctx)

	svc := reservation.NewService(appStore, stations, adapter, pool, 15*time.Minute)
	router := api.NewRouter(api.NewHandler(svc, appStore, nil), config.ServerConfig{
		RateLimitPerSec:           1000,
		RateLimitBurst:            1000,
		PasswordAttemptsPerMinute: 6000,
		PasswordAttemptBurst:      100,
	})

	call := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, _ := http.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// --- Step 1: station reports in ---
	b.deliver(mqttCfg.Topics.Detail, stationReport)
	require.Eventually(t, func() bool {
		_, ok := stations.Station("G7")
		return ok
	}, time.Second, 10*time.Millisecond)

	snap, _ := stations.Station("G7")
	require.Len(t, snap.Lockers, 2)
	assert.Equal(t, station.StatusAvailable, snap.Lockers[0].State)

	// --- Step 2: operator reserves a small locker ---
	w := call(http.MethodPost, "/api/reservations", map[string]any{
		"station_name":   "G7",
		"operator_email": "operator@example.com",
		"client_email":   "client@example.com",
		"height":         20, "width": 20, "depth": 20,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Reservation api.ReservationResponse `json:"reservation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, 1, created.Reservation.LockerID)
	id := created.Reservation.ID

	var r *model.Reservation
	r, err = appStore.FindActive(ctx, store.Match{ID: id})
	require.NoError(t, err)

	// --- Step 3: client confirms, both parties get their password ---
	w = call(http.MethodPost, fmt.Sprintf("/api/reservations/%d/confirm", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Eventually(t, func() bool {
		return len(mail.to("operator@example.com")) == 1 && len(mail.to("client@example.com")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, mail.to("operator@example.com")[0].Body, r.OperatorPassword)

	// --- Step 4: the measured parcel is bigger, so it moves to locker 2 ---
	w = call(http.MethodPost, "/api/reservations/operator-confirm", map[string]any{
		"password": r.OperatorPassword, "height": 30, "width": 30, "depth": 30,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `false`, string(mustField(t, w.Body.Bytes(), "expired")))

	// --- Step 5: operator opens to load ---
	w = call(http.MethodPost, "/api/locker/open", map[string]any{"type": "operator", "password": r.OperatorPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Eventually(t, func() bool { return len(mail.to("client@example.com")) == 2 }, time.Second, 10*time.Millisecond)

	// Replaying the same report changes nothing.
	b.deliver(mqttCfg.Topics.Detail, stationReport)
	b.deliver(mqttCfg.Topics.Detail, stationReport)
	// Reports are applied in order, so once a later station shows up the replays are done.
	b.deliver(mqttCfg.Topics.Detail, `{"station_name":"Z0","lockers":[]}`)
	require.Eventually(t, func() bool {
		_, ok := stations.Station("Z0")
		return ok
	}, time.Second, 10*time.Millisecond)
	replayed, _ := stations.Station("G7")
	assert.Equal(t, snap.Lockers, replayed.Lockers)

	w = call(http.MethodGet, "/api/stations/G7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"USED"`)

	// --- Step 6: client collects ---
	w = call(http.MethodPost, "/api/locker/open", map[string]any{"type": "client", "password": r.ClientPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, []published{
		{mqttCfg.Topics.Load, `{"station_name":"G7","nickname":2}`},
		{mqttCfg.Topics.Unload, `{"station_name":"G7","nickname":2}`},
	}, b.sent())

	_, err = appStore.FindActive(ctx, store.Match{ID: id})
	assert.ErrorIs(t, err, store.ErrNotFound, "a collected reservation is no longer active")

	w = call(http.MethodGet, "/api/stations/G7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"status":"USED"`)
	assert.Equal(t, int64(0), adapter.Dropped())
}

func mustField(t *testing.T, body []byte, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	v, ok := m[key]
	require.True(t, ok, "missing %q in %s", key, body)
	return v
}
