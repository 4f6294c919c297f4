package library

// Counter is an approximate token counter: ~4 characters per token plus a
// small per-block overhead. It deliberately over-counts slightly rather than
// risking context overflow; exact tokenization is a provider concern.
type Counter struct{}

// Count estimates the token cost of one text block.
func (Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 4
}
