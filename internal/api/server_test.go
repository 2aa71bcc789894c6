package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dhcpsentry/dhcpsentry/internal/broadcast"
	"github.com/dhcpsentry/dhcpsentry/internal/detect"
	"github.com/dhcpsentry/dhcpsentry/internal/history"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleHistory_ReturnsNewestFirst(t *testing.T) {
	hist := history.New(10)
	hist.Push(&detect.Request{MACAddress: "aa:aa:aa:aa:aa:aa", MessageType: "DISCOVER"})
	hist.Push(&detect.Request{MACAddress: "bb:bb:bb:bb:bb:bb", MessageType: "REQUEST"})

	s := NewServer(hist, nil, broadcast.NewHub(testLogger()), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=10", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []detect.Request
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].MACAddress != "bb:bb:bb:bb:bb:bb" {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestHandleStats_ReturnsCounts(t *testing.T) {
	hist := history.New(10)
	hist.Push(&detect.Request{MACAddress: "aa:aa:aa:aa:aa:aa", MessageType: "DISCOVER"})

	s := NewServer(hist, nil, broadcast.NewHub(testLogger()), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var stats history.Statistics
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalRequests != 1 {
		t.Fatalf("want total 1, got %d", stats.TotalRequests)
	}
}

func TestHandleLogs_WithoutStoreConfigured(t *testing.T) {
	hist := history.New(10)
	s := NewServer(hist, nil, broadcast.NewHub(testLogger()), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503 when no store is configured, got %d", rec.Code)
	}
}

func TestSameOrigin(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://dhcpsentry.local/ws", nil)
	r.Host = "dhcpsentry.local"

	r.Header.Set("Origin", "")
	if !sameOrigin(r) {
		t.Fatal("expected no Origin header to be accepted")
	}

	r.Header.Set("Origin", "http://localhost:5173")
	if !sameOrigin(r) {
		t.Fatal("expected localhost origin to be accepted")
	}

	r.Header.Set("Origin", "http://dhcpsentry.local")
	if !sameOrigin(r) {
		t.Fatal("expected matching host origin to be accepted")
	}

	r.Header.Set("Origin", "http://evil.example")
	if sameOrigin(r) {
		t.Fatal("expected cross-origin request to be rejected")
	}
}
