package library

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreviewRendersWholeBlocks(t *testing.T) {
	profile := Profile{
		Artists: []ArtistRef{
			{Name: "Boards of Canada", Genres: []string{"idm", "ambient"}, AlbumCount: 4},
			{Name: "  "},
			{Name: "Nina Simone"},
		},
	}

	blocks := profile.Preview()
	require.Len(t, blocks, 2)
	require.Equal(t, "Boards of Canada [idm, ambient] (4 albums)", blocks[0])
	require.Equal(t, "Nina Simone", blocks[1])
}

func TestSignatureIsOrderIndependent(t *testing.T) {
	a := Profile{Artists: []ArtistRef{{Name: "Autechre"}, {Name: "Burial"}}, Genres: []string{"idm"}}
	b := Profile{Artists: []ArtistRef{{Name: "Burial"}, {Name: "Autechre"}}, Genres: []string{"idm"}}

	require.Equal(t, a.Signature(), b.Signature())
}

func TestFingerprintStability(t *testing.T) {
	profile := Profile{Artists: []ArtistRef{{Name: "Low"}}}

	first := Fingerprint("openai", "gpt-4o-mini", 25, profile)
	second := Fingerprint("openai", "gpt-4o-mini", 25, profile)
	require.Equal(t, first, second)
	require.Len(t, first, 64)

	require.NotEqual(t, first, Fingerprint("openai", "gpt-4o-mini", 50, profile))
	require.NotEqual(t, first, Fingerprint("compat", "gpt-4o-mini", 25, profile))
}

func TestCounterApproximation(t *testing.T) {
	counter := Counter{}

	require.Equal(t, 0, counter.Count(""))
	require.Equal(t, 4+4, counter.Count("0123456789abcdef"))
	require.Greater(t, counter.Count("a long sampling preview entry with genres"), 10)
}
