// Package chunk splits text into overlapping fixed-width windows for
// embedding and context-limited ingestion.
package chunk

import (
	"fmt"

	"github.com/becomeliminal/pilot-go-sdk/core"
)

// Split advances a window of width maxLength across content with stride
// maxLength-overlap. The final chunk is whatever remains from the last
// stride start; if that remainder is no longer than overlap it is dropped,
// because the previous chunk's tail already covers it.
//
// Windows are measured in runes so multi-byte text never splits mid-character.
// Split never emits an empty chunk and never emits a chunk longer than
// maxLength.
func Split(content string, maxLength, overlap int) ([]string, error) {
	if maxLength <= 0 {
		return nil, fmt.Errorf("%w: maxLength must be positive, got %d", core.ErrInvalidArgument, maxLength)
	}
	if overlap < 0 || overlap >= maxLength {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < maxLength, got overlap=%d maxLength=%d",
			core.ErrInvalidArgument, overlap, maxLength)
	}

	runes := []rune(content)
	if len(runes) == 0 {
		return nil, nil
	}
	if len(runes) <= maxLength {
		return []string{content}, nil
	}

	stride := maxLength - overlap
	var chunks []string
	for start := 0; start < len(runes); start += stride {
		end := start + maxLength
		if end > len(runes) {
			end = len(runes)
		}
		// Remainder already covered by the previous chunk's overlap.
		if start > 0 && end-start <= overlap {
			break
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// Reassemble is the inverse of Split for testing and verification: it
// concatenates chunks dropping each chunk's leading overlap.
func Reassemble(chunks []string, overlap int) string {
	var out []rune
	for i, c := range chunks {
		runes := []rune(c)
		if i > 0 {
			if overlap >= len(runes) {
				continue
			}
			runes = runes[overlap:]
		}
		out = append(out, runes...)
	}
	return string(out)
}
