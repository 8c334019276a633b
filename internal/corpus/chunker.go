package corpus

import "strings"

// Chunking defaults. A window of 80 lines advancing by 70 keeps a 10-line
// overlap so no definition is lost entirely at a window boundary.
const (
	DefaultMaxLines = 80
	DefaultOverlap  = 10
)

// Chunk is a line-bounded slice of a source document, the unit of retrieval.
// StartLine is 1-based.
type Chunk struct {
	Text      string
	StartLine int
}

// Split slices text into overlapping line windows of at most maxLines lines,
// advancing maxLines-overlap per step. The final window may be partial.
// Empty or whitespace-only text yields no chunks.
func Split(text string, maxLines, overlap int) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if overlap < 0 || overlap >= maxLines {
		overlap = DefaultOverlap
	}

	lines := splitLines(text)
	n := len(lines)

	var chunks []Chunk
	for i := 0; i < n; {
		end := min(i+maxLines, n)
		chunks = append(chunks, Chunk{
			Text:      strings.Join(lines[i:end], "\n"),
			StartLine: i + 1,
		})
		if end == n {
			break
		}
		next := end - overlap
		if next <= i {
			next = end
		}
		i = next
	}
	return chunks
}

// splitLines splits on \n, tolerating \r\n and a trailing newline without
// producing a phantom empty final line.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}
