package common_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/common"
)

func TestIdempotencyMiddleware(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	status := http.StatusCreated
	handler := common.Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		common.JSON(w, status, map[string]any{"call": calls})
	}))

	send := func(sid, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/orders", nil)
		req = req.WithContext(common.WithSessionID(req.Context(), sid))
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send("s1", "k1")
	require.Equal(t, http.StatusCreated, first.Code)

	replayed := send("s1", "k1")
	require.Equal(t, http.StatusCreated, replayed.Code)
	require.Equal(t, "true", replayed.Header().Get("Idempotent-Replayed"))
	require.Equal(t, "application/json; charset=utf-8", replayed.Header().Get("Content-Type"))
	require.JSONEq(t, first.Body.String(), replayed.Body.String())

	require.Equal(t, http.StatusCreated, send("s2", "k1").Code)
	require.Equal(t, http.StatusCreated, send("s1", "").Code)
	require.Equal(t, 3, calls)

	status = http.StatusUnprocessableEntity
	require.Equal(t, http.StatusUnprocessableEntity, send("s1", "k2").Code)
	require.Equal(t, http.StatusUnprocessableEntity, send("s1", "k2").Code)
	require.Equal(t, 5, calls)
}

func TestIdempotencyInFlight(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	idem := common.Idem{R: client, TTL: time.Minute, Prefix: "sf:"}
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run while the key is claimed")
	}))

	ctx := common.WithSessionID(context.Background(), "s1")
	require.NoError(t, mr.Set("sf:idem:"+common.HashKey("s1", "k1"), "pending"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/orders", nil).WithContext(ctx)
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "IDEMPOTENT_REPLAY")
}

func TestSessionContext(t *testing.T) {
	_, ok := common.SessionID(context.Background())
	require.False(t, ok)

	ctx := common.WithSessionID(context.Background(), "abc")
	id, ok := common.SessionID(ctx)
	require.True(t, ok)
	require.Equal(t, "abc", id)
}

func TestEnvelopes(t *testing.T) {
	rec := httptest.NewRecorder()
	common.Data(rec, http.StatusOK, []string{"a"})
	require.JSONEq(t, `{"data":["a"]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	common.WriteError(rec, common.NewAppError("SESSION_BUSY", "busy", http.StatusConflict, nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.JSONEq(t, `{"error":{"code":"SESSION_BUSY","message":"busy"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	common.WriteError(rec, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"INTERNAL"`)
}

func TestPaginationAndHelpers(t *testing.T) {
	require.Equal(t, common.Pagination{Page: 2, PerPage: 5, TotalItems: 11, TotalPages: 3}, common.NewPagination(2, 5, 11))
	require.Equal(t, 0, common.NewPagination(1, 0, 11).TotalPages)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?page=3&limit=x&size=-2", nil)
	require.Equal(t, 3, common.QueryInt(req, "page", 1))
	require.Equal(t, 20, common.QueryInt(req, "limit", 20))
	require.Equal(t, 5, common.QueryInt(req, "size", 5))
	require.Equal(t, 1, common.QueryInt(req, "missing", 1))

	start, end := common.PageBounds(3, 5, 11)
	require.Equal(t, []int{10, 11}, []int{start, end})
	start, end = common.PageBounds(4, 5, 11)
	require.Equal(t, []int{11, 11}, []int{start, end})
	start, end = common.PageBounds(6917529027641081857, 4, 2)
	require.Equal(t, []int{2, 2}, []int{start, end})
	start, end = common.PageBounds(4611686018427387905, 4, 2)
	require.Equal(t, []int{2, 2}, []int{start, end})
	start, end = common.PageBounds(1, 4, 0)
	require.Equal(t, []int{0, 0}, []int{start, end})

	require.Len(t, common.HashKey("laptop"), 64)
	require.NotEqual(t, common.HashKey("ab", "c"), common.HashKey("a", "bc"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	require.Equal(t, "10.0.0.1", common.ClientIP(req))
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	require.Equal(t, "10.0.0.1", common.ClientIP(req), "forwarded headers are resolved by RealIP, not here")
	req.RemoteAddr = "203.0.113.9"
	require.Equal(t, "203.0.113.9", common.ClientIP(req))
}
