package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/netpulse/netpulse/internal/catalog"
	"github.com/netpulse/netpulse/internal/health"
	"github.com/netpulse/netpulse/internal/ingest"
	"github.com/netpulse/netpulse/internal/query"
	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/internal/webserver"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *webserver.WebServer {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	clock := func() time.Time { return testNow }
	apps := store.NewAppRepository(s)
	domains := store.NewDomainRepository(s)
	samples := store.NewSampleRepository(s)
	aggs := store.NewAggregateRepository(s)

	engine := query.NewEngine(apps, domains, samples, aggs, store.NewSummaryRepository(s),
		func() query.Tunables {
			return query.Tunables{
				SamplingInterval: 5 * time.Second,
				RawTTL:           7 * 24 * time.Hour,
				HourTTL:          90 * 24 * time.Hour,
			}
		}, clock)

	appCatalog := catalog.NewAppCatalog(apps, clock)
	domainCatalog := catalog.NewDomainCatalog(domains, clock)
	svc := ingest.NewService(domainCatalog, appCatalog, samples, clock)

	ws := webserver.New("127.0.0.1", 0)
	handler := &Handler{
		Query:  engine,
		Ingest: svc,
		Health: health.NewTracker(),
		Hub:    webserver.NewHub(),
	}
	handler.Register(ws)
	return ws
}

func doJSON(t *testing.T, ws *webserver.WebServer, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ws.Echo().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: unparseable response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestActiveTabRoundTrip(t *testing.T) {
	ws := newTestServer(t)

	rec, body := doJSON(t, ws, http.MethodPost, "/browser/active-tab",
		`{"domain":"www.Example.com","timestamp":1748779200,"browser":"zen"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if _, ok := body["domainId"]; !ok {
		t.Error("response missing domainId")
	}
	if body["parent_domain"] != "example.com" {
		t.Errorf("parent_domain = %v", body["parent_domain"])
	}
}

func TestActiveTabValidationFailure(t *testing.T) {
	ws := newTestServer(t)

	cases := []string{
		`{"domain":"","timestamp":1748779200,"browser":"zen"}`,
		`{"domain":"bad domain.com","timestamp":1748779200,"browser":"zen"}`,
		`{"domain":"example.com","timestamp":1748779200,"browser":""}`,
	}
	for i, payload := range cases {
		rec, body := doJSON(t, ws, http.MethodPost, "/browser/active-tab", payload)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("case %d: status = %d, want 400", i, rec.Code)
		}
		if body["correlation_id"] == nil {
			t.Errorf("case %d: missing correlation id", i)
		}
	}
}

func TestTimelineEndpointShape(t *testing.T) {
	ws := newTestServer(t)

	rec, body := doJSON(t, ws, http.MethodGet, "/stats/timeline?period=24h", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := body["data"].(map[string]interface{})
	if got := data["data_points"].(float64); got != 288 {
		t.Errorf("data_points = %v, want 288", got)
	}
}

func TestUnknownSortKeyRejected(t *testing.T) {
	ws := newTestServer(t)

	rec, body := doJSON(t, ws, http.MethodGet, "/applications?sort_by=evil", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body["code"] != "INVALID_REQUEST" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestUnknownEntityIsNotFound(t *testing.T) {
	ws := newTestServer(t)

	rec, body := doJSON(t, ws, http.MethodGet, "/applications/9999", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body["code"] != "NOT_FOUND" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestBandwidthEmptyIsZero(t *testing.T) {
	ws := newTestServer(t)

	rec, body := doJSON(t, ws, http.MethodGet, "/stats/bandwidth", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := body["data"].(map[string]interface{})
	if got := data["bytes_per_second"].(float64); got != 0 {
		t.Errorf("bytes_per_second = %v, want 0", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ws := newTestServer(t)

	rec, body := doJSON(t, ws, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["running"] != true {
		t.Errorf("running = %v", body["running"])
	}
	if body["degraded"] != false {
		t.Errorf("degraded = %v", body["degraded"])
	}
}
