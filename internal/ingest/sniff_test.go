package ingest

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestHeaderFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"plain header", "amount,merchant,country\n1,2,3\n", []string{"amount", "merchant", "country"}},
		{"quoted and padded", ` "amount" , "merchant",country ` + "\r\n1,2,3", []string{"amount", "merchant", "country"}},
		{"empties dropped", "a,,b, ,\"\"\n", []string{"a", "b"}},
		{"no trailing newline", "only", []string{"only"}},
		{"byte order mark", "\ufeffid,score\n", []string{"id", "score"}},
		{"empty input", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HeaderFields(strings.NewReader(tt.input)))
		})
	}
}

func TestHeaderFields_LongLineDropsPartialField(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 7000; i++ {
		fmt.Fprintf(&b, "field%04d,", i)
	}
	b.WriteString("\n1,2,3\n")

	got := HeaderFields(strings.NewReader(b.String()))
	require.Len(t, got, 6553)
	assert.Equal(t, "field6552", got[len(got)-1])

	assert.Equal(t, []string{}, HeaderFields(strings.NewReader(strings.Repeat("x", maxHeaderBytes+10))))
}

func TestHeaderFields_ReadError(t *testing.T) {
	assert.Equal(t, []string{}, HeaderFields(failingReader{}))
}

func TestDescribeFile(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		want     string
		accepted bool
	}{
		{"tx.csv", 2048, "tx.csv • 2 KB • CSV detected", true},
		{"Report.PDF", 1536, "Report.PDF • 2 KB • PDF detected", true},
		{"notes.txt", 100, "notes.txt • 0 KB • Unsupported file type", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DescribeFile(tt.name, tt.size)
			assert.Equal(t, tt.want, got.Message)
			assert.Equal(t, tt.accepted, got.Accepted)
		})
	}
}

func TestMergeFields(t *testing.T) {
	assert.Equal(t, []string{"a"}, MergeFields([]string{"a"}, []string{"b"}))
	assert.Equal(t, []string{"b"}, MergeFields(nil, []string{"b"}))
	assert.Equal(t, []string{}, MergeFields(nil, nil))
}
