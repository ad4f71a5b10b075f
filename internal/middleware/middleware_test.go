package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/sixeradda/ground-booking/internal/config"
)

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	e := echo.New()
	called := 0
	h := func(c echo.Context) error { called++; return c.NoContent(http.StatusNoContent) }

	for _, mw := range []echo.MiddlewareFunc{
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil),
		NewRedisCache(config.CacheConfig{Enabled: false}, nil),
	} {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/v1/bookings", nil), rec)
		if err := mw(h)(c); err != nil {
			t.Fatalf("middleware: %v", err)
		}
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status %d", rec.Code)
		}
	}
	if called != 2 {
		t.Fatalf("handler called %d times", called)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/bookings")

	tests := map[string]string{
		"ip":       "rl:ip:203.0.113.7",
		"route":    "rl:route:POST /v1/bookings",
		"ip_route": "rl:ip:203.0.113.7:route:POST /v1/bookings",
		"":         "rl:ip:203.0.113.7:route:POST /v1/bookings",
	}
	for strategy, want := range tests {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		if got != want {
			t.Errorf("strategy %q: got %q, want %q", strategy, got, want)
		}
	}
}

func TestParseBucketResult(t *testing.T) {
	allowed, remaining, retry, ok := parseBucketResult([]interface{}{int64(0), int64(0), int64(2500)})
	if !ok || allowed || remaining != 0 || retry != 2500 {
		t.Fatalf("got %v %d %d %v", allowed, remaining, retry, ok)
	}
	if retryAfterSeconds(retry) != 3 {
		t.Fatalf("retry-after = %d", retryAfterSeconds(retry))
	}
	if _, _, _, ok := parseBucketResult("OK"); ok {
		t.Fatal("non-array result accepted")
	}
}

func TestCachePayload(t *testing.T) {
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"slots":[]}`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	status, got, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || got.Get("Content-Type") != "application/json" || string(body) != `{"slots":[]}` {
		t.Fatalf("decoded %d %v %q %v", status, got, body, ok)
	}
	if _, _, _, ok := decodePayload(bs[:6]); ok {
		t.Fatal("short payload decoded")
	}
}

func TestCaptureWriterLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	_, _ = cw.Write([]byte("def"))
	if cw.buf.String() != "abcd" || cw.size != 6 || rec.Body.String() != "abcdef" {
		t.Fatalf("buf=%q size=%d client=%q", cw.buf.String(), cw.size, rec.Body.String())
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisCacheHitsOnSecondRequest(t *testing.T) {
	e := echo.New()
	calls := 0
	e.GET("/v1/slots", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"slots": []string{"6-7"}})
	}, NewRedisCache(config.CacheConfig{
		Enabled: true, Methods: []string{"GET"}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache", Debug: true,
	}, newTestRedis(t)))

	var last *httptest.ResponseRecorder
	for i, want := range []string{"MISS", "HIT"} {
		last = httptest.NewRecorder()
		e.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/v1/slots", nil))
		if last.Code != http.StatusOK || last.Header().Get("X-Cache") != want {
			t.Fatalf("request %d: status %d X-Cache %q", i, last.Code, last.Header().Get("X-Cache"))
		}
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
	if ct := last.Header().Get(echo.HeaderContentType); ct != echo.MIMEApplicationJSON {
		t.Fatalf("cached content type %q", ct)
	}
}

func TestTokenBucketBlocksWhenEmpty(t *testing.T) {
	e := echo.New()
	e.POST("/v1/bookings", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	}, NewTokenBucket(config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute,
		TTL: 10 * time.Minute, KeyStrategy: "ip_route", Prefix: "rl",
	}, newTestRedis(t)))

	codes := []int{}
	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rec = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
		req.Header.Set(echo.HeaderXRealIP, "203.0.113.7")
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes %v", codes)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After on a blocked request")
	}
}
