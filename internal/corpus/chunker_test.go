package corpus

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

func TestSplitEmpty(t *testing.T) {
	assert.Nil(t, Split("", DefaultMaxLines, DefaultOverlap))
	assert.Nil(t, Split("   \n\t\n", DefaultMaxLines, DefaultOverlap))
}

func TestSplitShortDocument(t *testing.T) {
	chunks := Split(numberedLines(30), 80, 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 30, len(strings.Split(chunks[0].Text, "\n")))
}

func TestSplitHundredLineFile(t *testing.T) {
	// 100 lines at 80/10 gives exactly two windows, starting at 1 and 71.
	chunks := Split(numberedLines(100), 80, 10)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 71, chunks[1].StartLine)

	last := strings.Split(chunks[1].Text, "\n")
	assert.Equal(t, "line 100", last[len(last)-1])
}

func TestSplitChunkCountFormula(t *testing.T) {
	const m, o = 80, 10
	for _, n := range []int{1, 79, 80, 81, 100, 150, 170, 171, 500} {
		chunks := Split(numberedLines(n), m, o)
		want := 1
		if n > m {
			want = int(math.Ceil(float64(n-o) / float64(m-o)))
		}
		assert.Len(t, chunks, want, "n=%d", n)
	}
}

func TestSplitStartLinesStrictlyIncreasing(t *testing.T) {
	chunks := Split(numberedLines(400), 80, 10)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].StartLine, chunks[i-1].StartLine)
	}

	// Final window must end on the document's last line.
	last := strings.Split(chunks[len(chunks)-1].Text, "\n")
	assert.Equal(t, "line 400", last[len(last)-1])
}

func TestSplitWindowsOverlap(t *testing.T) {
	chunks := Split(numberedLines(200), 80, 10)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prev := strings.Split(chunks[i-1].Text, "\n")
		cur := strings.Split(chunks[i].Text, "\n")
		// First 10 lines of each window repeat the previous window's tail.
		assert.Equal(t, prev[len(prev)-10:], cur[:10])
	}
}

func TestSplitCRLF(t *testing.T) {
	chunks := Split("a\r\nb\r\nc", 80, 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a\nb\nc", chunks[0].Text)
}
