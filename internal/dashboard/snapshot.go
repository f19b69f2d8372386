// Package dashboard polls the debug surface and renders it for a terminal.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/splitkit/internal/analytics"
	"github.com/harunnryd/splitkit/internal/experiment"
	"github.com/harunnryd/splitkit/internal/frame"
	"github.com/harunnryd/splitkit/internal/timing"
)

// Snapshot is everything the debug view shows at one instant.
type Snapshot struct {
	TakenAt     time.Time               `json:"takenAt"`
	Session     analytics.SessionData   `json:"session"`
	Metrics     timing.Metrics          `json:"metrics"`
	Experiments []experiment.Experiment `json:"experiments"`
	Assignments []experiment.Assignment `json:"assignments"`
	Pointer     frame.Stats             `json:"pointer"`
	Loading     frame.GateState         `json:"loading"`
}

// Source produces snapshots.
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// SourceFunc adapts an in-process snapshot function.
type SourceFunc func(ctx context.Context) (Snapshot, error)

func (f SourceFunc) Fetch(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// HTTPSource reads GET <BaseURL>/debug/snapshot.
type HTTPSource struct {
	BaseURL  string
	ClientID string
	Client   *http.Client
}

func NewHTTPSource(baseURL, clientID string) *HTTPSource {
	return &HTTPSource{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		ClientID: clientID,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/debug/snapshot", nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("build snapshot request: %w", err)
	}
	if s.ClientID != "" {
		req.Header.Set("X-Client-ID", s.ClientID)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("fetch snapshot: unexpected status %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
