package chunking

import (
	"strings"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

const sentenceSnapRatio = 0.5

// Splitter cuts text into overlapping word windows. A window that does not
// reach the end of the text is shortened to its last sentence boundary
// when that boundary lies past half of the window.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []domain.TextChunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	out := make([]domain.TextChunk, 0, len(words)/(s.ChunkSize-s.Overlap)+1)
	for start := 0; start < len(words); {
		end := min(start+s.ChunkSize, len(words))
		if end < len(words) {
			end = s.snapToSentence(words, start, end)
		}
		out = append(out, domain.TextChunk{
			Text:      strings.Join(words[start:end], " "),
			StartWord: start,
			EndWord:   end,
		})
		if end == len(words) {
			break
		}
		start = max(end-s.Overlap, start+1)
	}
	return out
}

// snapToSentence returns the end of the last word in words[start:end]
// that closes a sentence, if it lies past the snap ratio.
func (s *Splitter) snapToSentence(words []string, start, end int) int {
	minEnd := start + int(float64(end-start)*sentenceSnapRatio)
	for i := end - 1; i >= minEnd; i-- {
		if strings.HasSuffix(words[i], ".") {
			return i + 1
		}
	}
	return end
}
