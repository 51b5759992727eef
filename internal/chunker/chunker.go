package chunker

import "strings"

// Split cuts text into overlapping segments of roughly targetSize whitespace
// tokens. Chunk boundaries prefer paragraph ends; a paragraph longer than
// targetSize is windowed by itself. Identical input and parameters always
// produce identical output, which ingestion relies on for idempotent
// re-processing.
func Split(text string, targetSize, overlap int) []string {
	if targetSize <= 0 {
		targetSize = 800
	}
	if overlap < 0 || overlap >= targetSize {
		overlap = targetSize / 8
	}

	out := make([]string, 0)
	cur := make([]string, 0, targetSize)
	carried := 0 // overlap tokens carried from the previous chunk

	emit := func() {
		out = append(out, strings.Join(cur, " "))
		if overlap > 0 && len(cur) > overlap {
			tail := cur[len(cur)-overlap:]
			cur = append(make([]string, 0, targetSize), tail...)
		} else {
			cur = cur[:0]
		}
		carried = len(cur)
	}

	for _, para := range splitParagraphs(text) {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		if len(words) > targetSize {
			// Oversized paragraph: flush what we have, then window it.
			if len(cur) > carried {
				emit()
			}
			cur = cur[:0]
			carried = 0
			step := targetSize - overlap
			for i := 0; i < len(words); i += step {
				end := i + targetSize
				if end >= len(words) {
					out = append(out, strings.Join(words[i:], " "))
					break
				}
				out = append(out, strings.Join(words[i:end], " "))
			}
			continue
		}
		if len(cur)+len(words) > targetSize && len(cur) > carried {
			emit()
		}
		cur = append(cur, words...)
	}
	if len(cur) > carried {
		emit()
	}
	return out
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n\n")
}
