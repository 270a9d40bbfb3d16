package notice_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/notice"
)

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, string, notice.Notice) error {
	return errors.New("boom")
}

func newBus(t *testing.T, limit int) (*notice.Bus, *bytes.Buffer) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	return &notice.Bus{
		Store:     &notice.RedisStore{Client: client, Limit: limit, TTL: time.Hour},
		Notifiers: []notice.Notifier{notice.LogNotifier{Logger: logger}, failingNotifier{}},
		Logger:    &logger,
	}, &buf
}

func TestBusDrainOrderAndCap(t *testing.T) {
	bus, logs := newBus(t, 2)
	ctx := context.Background()

	bus.Emit(ctx, "s1", notice.LevelSuccess, "X1 added to cart")
	bus.Emit(ctx, "s1", notice.LevelInfo, "X1 quantity updated")
	bus.Emit(ctx, "s1", notice.LevelInfo, "X1 removed from cart")
	bus.Emit(ctx, "s2", notice.LevelInfo, "other session")

	got, err := bus.Drain(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "X1 quantity updated", got[0].Message)
	require.Equal(t, "X1 removed from cart", got[1].Message)

	again, err := bus.Drain(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, again)

	require.Contains(t, logs.String(), "X1 added to cart")
	require.Contains(t, logs.String(), "notice delivery failed")
}

func TestNilBusIsSilent(t *testing.T) {
	var bus *notice.Bus
	n := bus.Emit(context.Background(), "s1", notice.LevelInfo, "hello")
	require.Equal(t, "hello", n.Message)
	got, err := bus.Drain(context.Background(), "s1")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDrainHandler(t *testing.T) {
	bus, _ := newBus(t, 5)
	bus.Emit(context.Background(), "s1", notice.LevelSuccess, "Order 112-1234567 placed")
	handler := &notice.Handler{Bus: bus}

	rec := httptest.NewRecorder()
	handler.Drain(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notices", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notices", nil)
	req = req.WithContext(common.WithSessionID(req.Context(), "s1"))
	rec = httptest.NewRecorder()
	handler.Drain(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []notice.Notice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, notice.LevelSuccess, body.Data[0].Level)
}
