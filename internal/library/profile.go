// Package library models the caller's music library and derives the
// request-scoped inputs the engine consumes opaquely: the sampling preview,
// the request fingerprint, and the approximate token counter.
package library

import (
	"fmt"
	"sort"
	"strings"
)

// ArtistRef is one library artist with lightweight metadata.
type ArtistRef struct {
	Name       string   `json:"name" yaml:"name"`
	Genres     []string `json:"genres,omitempty" yaml:"genres,omitempty"`
	AlbumCount int      `json:"album_count,omitempty" yaml:"album_count,omitempty"`
}

// Profile summarizes a music library for prompting and exclusion.
type Profile struct {
	Artists []ArtistRef `json:"artists" yaml:"artists"`
	Genres  []string    `json:"genres,omitempty" yaml:"genres,omitempty"`
}

// Preview renders the library as self-contained text blocks. The budgeter
// selects whole blocks greedily, so each block must stand alone.
func (p Profile) Preview() []string {
	if len(p.Artists) == 0 {
		return nil
	}

	blocks := make([]string, 0, len(p.Artists))
	for _, artist := range p.Artists {
		name := strings.TrimSpace(artist.Name)
		if name == "" {
			continue
		}

		var b strings.Builder
		b.WriteString(name)
		if len(artist.Genres) > 0 {
			b.WriteString(" [")
			b.WriteString(strings.Join(artist.Genres, ", "))
			b.WriteString("]")
		}
		if artist.AlbumCount > 0 {
			fmt.Fprintf(&b, " (%d albums)", artist.AlbumCount)
		}
		blocks = append(blocks, b.String())
	}
	return blocks
}

// ExcludeKeys returns dedupe keys for every artist already in the library so
// the engine can drop recommendations the caller already owns.
func (p Profile) ExcludeKeys() []string {
	keys := make([]string, 0, len(p.Artists))
	for _, artist := range p.Artists {
		name := strings.ToLower(strings.TrimSpace(artist.Name))
		if name == "" {
			continue
		}
		keys = append(keys, name+"|")
	}
	return keys
}

// Signature is a stable digest input for the profile: sorted artist names
// joined with genre hints. Ordering of the source slice does not matter.
func (p Profile) Signature() string {
	names := make([]string, 0, len(p.Artists))
	for _, artist := range p.Artists {
		name := strings.ToLower(strings.TrimSpace(artist.Name))
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	genres := make([]string, 0, len(p.Genres))
	for _, genre := range p.Genres {
		g := strings.ToLower(strings.TrimSpace(genre))
		if g == "" {
			continue
		}
		genres = append(genres, g)
	}
	sort.Strings(genres)

	return strings.Join(names, ";") + "#" + strings.Join(genres, ";")
}
