// Package mock provides a deterministic in-process backend for doctor runs
// and tests. It never touches the network.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/tracklens/tracklens/internal/core"
	"github.com/tracklens/tracklens/internal/core/engine"
)

// Client fabricates recommendations from a rotating seed catalog. Each call
// continues where the previous one left off, so refinement rounds produce
// fresh entries until the catalog is exhausted.
type Client struct {
	ProviderName string

	mu     sync.Mutex
	cursor int
	seed   []core.Recommendation
}

// New returns a mock provider with the built-in catalog.
func New(name string) *Client {
	if name == "" {
		name = "mock"
	}
	return &Client{ProviderName: name, seed: defaultCatalog()}
}

func (c *Client) Name() string {
	return c.ProviderName
}

// GetRecommendations returns up to prompt.Count entries from the catalog,
// advancing an internal cursor. Past the catalog it returns an empty batch,
// which exercises the caller's zero-round handling.
func (c *Client) GetRecommendations(ctx context.Context, prompt engine.ProviderPrompt) ([]core.Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor >= len(c.seed) {
		return nil, nil
	}
	end := c.cursor + prompt.Count
	if prompt.Count <= 0 || end > len(c.seed) {
		end = len(c.seed)
	}
	batch := make([]core.Recommendation, end-c.cursor)
	copy(batch, c.seed[c.cursor:end])
	c.cursor = end
	return batch, nil
}

func (c *Client) TestConnection(ctx context.Context) error {
	return ctx.Err()
}

// Reset rewinds the catalog cursor.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = 0
}

func defaultCatalog() []core.Recommendation {
	names := []struct{ artist, album, genre string }{
		{"Boards of Canada", "Music Has the Right to Children", "idm"},
		{"Portishead", "Dummy", "trip hop"},
		{"Khruangbin", "Con Todo El Mundo", "psychedelic funk"},
		{"Alice Coltrane", "Journey in Satchidananda", "spiritual jazz"},
		{"Stereolab", "Emperor Tomato Ketchup", "post rock"},
		{"Burial", "Untrue", "uk garage"},
		{"Broadcast", "Tender Buttons", "electronic"},
		{"Can", "Future Days", "krautrock"},
		{"Four Tet", "Rounds", "electronic"},
		{"Madlib", "Shades of Blue", "hip hop"},
		{"Tortoise", "TNT", "post rock"},
		{"Nala Sinephro", "Space 1.8", "ambient jazz"},
	}
	recs := make([]core.Recommendation, 0, len(names))
	for i, n := range names {
		recs = append(recs, core.Recommendation{
			Artist:     n.artist,
			Album:      n.album,
			Genre:      n.genre,
			Confidence: 0.95 - float64(i)*0.05,
			Reason:     fmt.Sprintf("catalog staple adjacent to %s listening", n.genre),
		})
	}
	return recs
}
