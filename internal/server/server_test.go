package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/splitkit/internal/analytics"
	"github.com/harunnryd/splitkit/internal/core"
	"github.com/harunnryd/splitkit/internal/dashboard"
	"github.com/harunnryd/splitkit/internal/experiment"
	"github.com/harunnryd/splitkit/internal/metrics"
	"github.com/harunnryd/splitkit/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type heldScheduler struct {
	mu  sync.Mutex
	fns []func()
}

func (h *heldScheduler) AfterFunc(_ time.Duration, fn func()) func() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := len(h.fns)
	h.fns = append(h.fns, fn)
	return func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.fns[idx] == nil {
			return false
		}
		h.fns[idx] = nil
		return true
	}
}

func (h *heldScheduler) fireAll() {
	h.mu.Lock()
	fns := h.fns
	h.fns = make([]func(), len(fns))
	h.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

type fixture struct {
	srv   *Server
	core  *core.Core
	kv    store.KV
	sched *heldScheduler
	sink  *metrics.Sink
}

func newFixture(t *testing.T, debug bool) *fixture {
	t.Helper()
	reg := experiment.NewRegistry()
	reg.Define("hero", []experiment.Variant{
		{ID: "A", Name: "Classic", Weight: 50, Config: map[string]any{"headline": "Boxes"}},
		{ID: "B", Name: "Bold", Weight: 50},
	})

	sink := metrics.NewSink(nil)
	kv := store.NewMemoryKV()
	c := core.New(reg, kv,
		core.WithRandom(func() float64 { return 0.1 }),
		core.WithSinkFactory(func(string, string) analytics.Sink { return sink }),
	)

	sched := &heldScheduler{}
	srv := New(c, Options{
		Debug:     debug,
		Metrics:   sink,
		Scheduler: sched,
		Health:    func() map[string]any { return map[string]any{"Store": "ok"} },
	})
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, core: c, kv: kv, sched: sched, sink: sink}
}

func (f *fixture) do(t *testing.T, method, path, client string, body any) *httptest.ResponseRecorder {
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if client != "" {
		req.Header.Set(ClientIDHeader, client)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

type variantResponse struct {
	ExperimentID string              `json:"experimentId"`
	Variant      *experiment.Variant `json:"variant"`
}

func TestVariantAssignsOncePerClient(t *testing.T) {
	f := newFixture(t, true)

	first := decode[variantResponse](t, f.do(t, http.MethodGet, "/api/variant/hero", "v1", nil))
	second := decode[variantResponse](t, f.do(t, http.MethodGet, "/api/variant/hero", "v1", nil))
	require.NotNil(t, first.Variant)
	assert.Equal(t, "A", first.Variant.ID)
	assert.Equal(t, first.Variant.ID, second.Variant.ID)

	session := decode[analytics.SessionData](t, f.do(t, http.MethodGet, "/debug/session", "v1", nil))
	assert.Equal(t, 1, session.EventCount)

	other := decode[analytics.SessionData](t, f.do(t, http.MethodGet, "/debug/session", "v2", nil))
	assert.Equal(t, 0, other.EventCount)
	assert.NotEqual(t, session.SessionID, other.SessionID)
}

func TestVariantUnknownExperimentIsNull(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodGet, "/api/variant/does_not_exist", "v1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode[variantResponse](t, w)
	assert.Nil(t, resp.Variant)
}

func TestVariantDeterministicForUser(t *testing.T) {
	f := newFixture(t, false)

	a := decode[variantResponse](t, f.do(t, http.MethodGet, "/api/variant/hero?user=ab", "v1", nil))
	b := decode[variantResponse](t, f.do(t, http.MethodGet, "/api/variant/hero?user=ab", "v2", nil))
	require.NotNil(t, a.Variant)
	// HashBucket("ab") is 5, inside A's 50% share.
	assert.Equal(t, "A", a.Variant.ID)
	assert.Equal(t, a.Variant.ID, b.Variant.ID)
}

func TestClientIDIssuedWhenMissing(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodGet, "/api/variant/hero", "", nil)
	issued := w.Header().Get(ClientIDHeader)
	assert.NotEmpty(t, issued)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == ClientIDCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, issued, cookie.Value)

	req := httptest.NewRequest(http.MethodGet, "/api/variant/hero", nil)
	req.AddCookie(cookie)
	w2 := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w2, req)
	assert.Equal(t, issued, w2.Header().Get(ClientIDHeader))
}

func TestConversionFlow(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, http.MethodPost, "/api/conversion", "v1", map[string]any{"experimentId": "hero", "conversionType": "click"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.False(t, decode[map[string]bool](t, w)["tracked"])

	f.do(t, http.MethodGet, "/api/variant/hero", "v1", nil)
	w = f.do(t, http.MethodPost, "/api/conversion", "v1", map[string]any{"experimentId": "hero", "value": 4})
	assert.True(t, decode[map[string]bool](t, w)["tracked"])

	session := decode[analytics.SessionData](t, f.do(t, http.MethodGet, "/debug/session", "v1", nil))
	require.Len(t, session.Events, 2)
	conv := session.Events[1]
	assert.Equal(t, analytics.EventConversion, conv.Name)
	assert.Equal(t, experiment.DefaultConversionType, conv.String("conversionType"))
	value, _ := conv.Float("value")
	assert.Equal(t, 4.0, value)

	w = f.do(t, http.MethodPost, "/api/conversion", "v1", map[string]any{"conversionType": "click"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsAndInteractions(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, http.MethodPost, "/api/events", "v1", map[string]any{"name": "cta_viewed", "properties": map[string]any{"section": "hero"}})
	assert.Equal(t, http.StatusAccepted, w.Code)
	w = f.do(t, http.MethodPost, "/api/interaction", "v1", map[string]any{"type": "click", "details": map[string]any{"target": "buy"}})
	assert.Equal(t, http.StatusAccepted, w.Code)
	w = f.do(t, http.MethodPost, "/api/events", "v1", map[string]any{"properties": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	session := decode[analytics.SessionData](t, f.do(t, http.MethodGet, "/debug/session", "v1", nil))
	require.Len(t, session.Events, 2)
	assert.Equal(t, "cta_viewed", session.Events[0].Name)
	assert.Equal(t, "hero", session.Events[0].String("section"))
	assert.Equal(t, analytics.EventUserInteraction, session.Events[1].Name)
	assert.Equal(t, "click", session.Events[1].String("type"))
	assert.Equal(t, "buy", session.Events[1].String("target"))
}

func TestPointerIsCoalesced(t *testing.T) {
	f := newFixture(t, true)
	move := map[string]any{"x": 50, "y": 50, "width": 100, "height": 100}

	assert.True(t, decode[map[string]bool](t, f.do(t, http.MethodPost, "/api/pointer", "v1", move))["accepted"])
	assert.False(t, decode[map[string]bool](t, f.do(t, http.MethodPost, "/api/pointer", "v1", move))["accepted"])

	f.sched.fireAll()

	session := decode[analytics.SessionData](t, f.do(t, http.MethodGet, "/debug/session", "v1", nil))
	require.Len(t, session.Events, 1)
	evt := session.Events[0]
	assert.Equal(t, InteractionPointerMove, evt.String("type"))
	x, _ := evt.Float("x")
	assert.Equal(t, 0.0, x)

	snap := decode[dashboard.Snapshot](t, f.do(t, http.MethodGet, "/debug/snapshot", "v1", nil))
	assert.Equal(t, int64(1), snap.Pointer.Dropped)
	assert.Equal(t, int64(1), snap.Pointer.Delivered)
}

func TestTimingRoutes(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/timing/mark", "v1", map[string]any{"name": "boot"}).Code)

	w := f.do(t, http.MethodPost, "/api/timing/measure", "v1", map[string]any{"name": "boot_time", "startMark": "boot"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, decode[map[string]any](t, w)["measure"])

	w = f.do(t, http.MethodPost, "/api/timing/measure", "v1", map[string]any{"name": "x", "startMark": "never"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[map[string]any](t, w)["measure"])

	metricsResp := decode[map[string][]map[string]any](t, f.do(t, http.MethodGet, "/debug/metrics", "v1", nil))
	assert.Len(t, metricsResp["measures"], 1)
	assert.Len(t, metricsResp["marks"], 1)
}

func TestLoadingGate(t *testing.T) {
	f := newFixture(t, false)

	state := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/loading", "v1", nil))
	assert.Equal(t, false, state["loaded"])

	state = decode[map[string]any](t, f.do(t, http.MethodPost, "/api/loading/ready", "v1", nil))
	assert.Equal(t, true, state["loaded"])
	assert.Equal(t, "ready", state["reason"])
}

func TestDebugRoutesDisabled(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/debug/snapshot", "v1", nil).Code)
}

func TestDebugExperimentsAndExports(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodGet, "/api/variant/hero", "v1", nil)

	exps := decode[struct {
		Experiments []experiment.Experiment `json:"experiments"`
		Assignments []experiment.Assignment `json:"assignments"`
	}](t, f.do(t, http.MethodGet, "/debug/experiments", "v1", nil))
	require.Len(t, exps.Experiments, 1)
	require.Len(t, exps.Assignments, 1)
	assert.Equal(t, "A", exps.Assignments[0].Variant.ID)

	w := f.do(t, http.MethodGet, "/debug/export/session", "v1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment;"))
	exported := decode[analytics.SessionData](t, w)
	assert.Equal(t, 1, exported.EventCount)

	w = f.do(t, http.MethodGet, "/debug/export/metrics", "v1", nil)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "metrics-")
}

func TestClearScopeThenReassign(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodGet, "/api/variant/hero", "v1", nil)
	f.do(t, http.MethodGet, "/api/variant/hero", "v2", nil)

	w := f.do(t, http.MethodPost, "/debug/clear", "v1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	keys, err := f.kv.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"v2:ab_hero"}, keys)

	w = f.do(t, http.MethodPost, "/debug/clear?all=true", "v1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	keys, err = f.kv.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLandingRendersVariant(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, http.MethodGet, "/", "v1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `data-variant="A"`)
	assert.Contains(t, w.Body.String(), "Boxes")

	metricsResp := decode[map[string][]map[string]any](t, f.do(t, http.MethodGet, "/debug/metrics", "v1", nil))
	require.Len(t, metricsResp["measures"], 1)
	assert.Equal(t, "Landing", metricsResp["measures"][0]["name"])
}

func TestPanicServesFallback(t *testing.T) {
	f := newFixture(t, true)
	f.srv.router.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := f.do(t, http.MethodGet, "/boom", "v1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Refresh Page")

	session := decode[analytics.SessionData](t, f.do(t, http.MethodGet, "/debug/session", "v1", nil))
	require.Len(t, session.Events, 1)
	assert.Equal(t, analytics.EventError, session.Events[0].Name)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodGet, "/api/variant/hero", "v1", nil)

	health := decode[map[string]any](t, f.do(t, http.MethodGet, "/health", "", nil))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, map[string]any{"Store": "ok"}, health["components"])

	w := f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `splitkit_assignments_total{experiment="hero",variant="A"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/api/conversion", nil)
	req.Header.Set("Origin", "http://localhost:4321")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
