// Package boundary catches render failures and swaps in a static fallback page.
package boundary

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/harunnryd/splitkit/internal/analytics"
	splitErrors "github.com/harunnryd/splitkit/internal/errors"

	"github.com/gin-gonic/gin"
)

// FallbackPage is served in place of any page whose render failed.
const FallbackPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Something went wrong</title></head>
<body>
<main class="error-fallback">
<h1>Oops! Something went wrong</h1>
<p>We're sorry for the inconvenience. Please try refreshing the page.</p>
<button type="button" onclick="window.location.reload()">Refresh Page</button>
</main>
</body>
</html>
`

type ErrorTracker interface {
	TrackError(err error, context map[string]any) analytics.Event
}

// RenderFault is a failed or panicking render with the stack at the point of
// failure.
type RenderFault struct {
	Component string
	Cause     error
	stack     string
}

func (f *RenderFault) Error() string {
	return fmt.Sprintf("render %s: %v", f.Component, f.Cause)
}

func (f *RenderFault) Unwrap() []error {
	return []error{splitErrors.ErrRenderFault, f.Cause}
}

func (f *RenderFault) Stack() string {
	return f.stack
}

type Boundary struct {
	tracker ErrorTracker
}

func New(tracker ErrorTracker) *Boundary {
	return &Boundary{tracker: tracker}
}

// Render runs fn and returns its output. A panic or error from fn is reported
// and replaced by FallbackPage.
func (b *Boundary) Render(component string, fn func() ([]byte, error)) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			report(b.tracker, newFault(component, panicError(r)), nil)
			out = []byte(FallbackPage)
		}
	}()

	body, err := fn()
	if err != nil {
		report(b.tracker, newFault(component, err), nil)
		return []byte(FallbackPage)
	}
	return body
}

// Middleware recovers panics in downstream handlers and answers with the
// fallback page.
func (b *Boundary) Middleware() gin.HandlerFunc {
	return Middleware(func(*gin.Context) ErrorTracker { return b.tracker })
}

// Middleware is the boundary for handlers whose error tracker depends on the
// request, such as a per-visitor session.
func Middleware(resolve func(*gin.Context) ErrorTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				report(resolve(c), newFault(c.FullPath(), panicError(r)), map[string]any{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
				})
				c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", []byte(FallbackPage))
				c.Abort()
			}
		}()
		c.Next()
	}
}

func report(tracker ErrorTracker, fault *RenderFault, extra map[string]any) {
	context := map[string]any{"component": fault.Component}
	for k, v := range extra {
		context[k] = v
	}

	slog.Error("Render failed, serving fallback",
		"component", fault.Component,
		"category", splitErrors.Category(fault),
		"error", fault.Cause,
	)
	if tracker != nil {
		tracker.TrackError(fault, context)
	}
}

func newFault(component string, cause error) *RenderFault {
	return &RenderFault{Component: component, Cause: cause, stack: string(debug.Stack())}
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
