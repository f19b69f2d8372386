package server

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/harunnryd/splitkit/internal/boundary"
	"github.com/harunnryd/splitkit/internal/core"
	"github.com/harunnryd/splitkit/internal/experiment"
	"github.com/harunnryd/splitkit/internal/timing"

	"github.com/gin-gonic/gin"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Box Factory</title></head>
<body data-client="{{.ClientID}}">
<main>
{{range .Sections}}<section data-experiment="{{.ExperimentID}}"{{with .Variant}} data-variant="{{.ID}}"{{end}}>
{{with .Variant}}<h2>{{.Name}}</h2>
<dl>{{range $k, $v := .Config}}<dt>{{$k}}</dt><dd>{{$v}}</dd>{{end}}</dl>{{else}}<h2>default</h2>{{end}}
</section>
{{end}}</main>
</body>
</html>
`))

type landingSection struct {
	ExperimentID string
	Variant      *experiment.Variant
}

type landingPage struct {
	ClientID string
	Sections []landingSection
}

type rendered struct {
	body []byte
	err  error
}

// handleLanding renders one section per defined experiment with the
// visitor's variant. Render failures fall back to the static error page.
func (s *Server) handleLanding(c *gin.Context) {
	scope := s.scope(c)
	b := boundary.New(scope.Analytics)

	body := b.Render("Landing", func() ([]byte, error) {
		out := timing.MeasureRender(scope.Recorder, "Landing", func() rendered {
			body, err := renderLanding(scope, s.core.Registry.Experiments(), c.Query("user"))
			return rendered{body: body, err: err}
		})
		return out.body, out.err
	})

	c.Data(http.StatusOK, "text/html; charset=utf-8", body)
}

func renderLanding(scope *core.Scope, experiments []experiment.Experiment, userID string) ([]byte, error) {
	page := landingPage{ClientID: scope.ID}
	for _, exp := range experiments {
		page.Sections = append(page.Sections, landingSection{
			ExperimentID: exp.ID,
			Variant:      scope.Engine.GetVariant(exp.ID, userID),
		})
	}

	var buf bytes.Buffer
	if err := landingTemplate.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
