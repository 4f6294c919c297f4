package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracklens/tracklens/internal/core/engine"
)

func TestMockAdvancesThroughCatalog(t *testing.T) {
	client := New("mock")

	first, err := client.GetRecommendations(context.Background(), engine.ProviderPrompt{Count: 5})
	require.NoError(t, err)
	require.Len(t, first, 5)

	second, err := client.GetRecommendations(context.Background(), engine.ProviderPrompt{Count: 5})
	require.NoError(t, err)
	require.Len(t, second, 5)
	require.NotEqual(t, first[0].Artist, second[0].Artist)

	// Draining the catalog yields empty batches, not errors.
	for i := 0; i < 3; i++ {
		batch, err := client.GetRecommendations(context.Background(), engine.ProviderPrompt{Count: 5})
		require.NoError(t, err)
		if i > 0 {
			require.Empty(t, batch)
		}
	}

	client.Reset()
	again, err := client.GetRecommendations(context.Background(), engine.ProviderPrompt{Count: 1})
	require.NoError(t, err)
	require.Equal(t, first[0], again[0])
}

func TestMockHonorsCancellation(t *testing.T) {
	client := New("mock")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetRecommendations(ctx, engine.ProviderPrompt{Count: 1})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, client.TestConnection(ctx), context.Canceled)
}
