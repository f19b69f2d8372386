package boundary

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/splitkit/internal/analytics"
	splitErrors "github.com/harunnryd/splitkit/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingReporter struct {
	errs []error
}

func (r *capturingReporter) CaptureException(err error, _ map[string]any) error {
	r.errs = append(r.errs, err)
	return nil
}

func TestRenderPassesThroughOutput(t *testing.T) {
	svc := analytics.New()
	b := New(svc)

	out := b.Render("Landing", func() ([]byte, error) { return []byte("<h1>hi</h1>"), nil })
	assert.Equal(t, "<h1>hi</h1>", string(out))
	assert.Equal(t, 0, svc.SessionData().EventCount)
}

func TestRenderRecoversPanic(t *testing.T) {
	reporter := &capturingReporter{}
	svc := analytics.New(analytics.WithErrorReporter(reporter))
	b := New(svc)

	var out []byte
	require.NotPanics(t, func() {
		out = b.Render("Logo", func() ([]byte, error) { panic("canvas exploded") })
	})
	assert.Equal(t, FallbackPage, string(out))
	assert.Contains(t, string(out), "window.location.reload()")

	events := svc.SessionData().Events
	require.Len(t, events, 1)
	assert.Equal(t, analytics.EventError, events[0].Name)
	assert.Contains(t, events[0].String("message"), "canvas exploded")
	assert.NotEmpty(t, events[0].String("stack"))
	ctx, ok := events[0].Property("context")
	require.True(t, ok)
	assert.Equal(t, "Logo", ctx.(map[string]any)["component"])

	require.Len(t, reporter.errs, 1)
	assert.True(t, errors.Is(reporter.errs[0], splitErrors.ErrRenderFault))
}

func TestRenderReportsReturnedError(t *testing.T) {
	svc := analytics.New()
	b := New(svc)
	cause := errors.New("template missing")

	out := b.Render("Hero", func() ([]byte, error) { return nil, cause })
	assert.Equal(t, FallbackPage, string(out))
	assert.Equal(t, 1, svc.SessionData().EventCount)
}

func TestRenderFaultUnwraps(t *testing.T) {
	cause := errors.New("boom")
	fault := newFault("X", cause)

	assert.ErrorIs(t, fault, splitErrors.ErrRenderFault)
	assert.ErrorIs(t, fault, cause)
	assert.Equal(t, "RenderFault", splitErrors.Category(fault))
	assert.NotEmpty(t, fault.Stack())
}

func TestMiddlewareServesFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := analytics.New()
	b := New(svc)

	r := gin.New()
	r.Use(b.Middleware())
	r.GET("/boom", func(c *gin.Context) { panic(errors.New("handler blew up")) })
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Refresh Page")
	assert.Equal(t, 1, svc.SessionData().EventCount)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fine", w.Body.String())
}
