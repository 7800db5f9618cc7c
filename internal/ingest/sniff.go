// Package ingest inspects uploaded files before they are sent for scoring.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxHeaderBytes bounds how much of a file is read looking for the header line.
const maxHeaderBytes = 64 * 1024

// Kind is the upload type inferred from a file name.
type Kind string

const (
	KindCSV         Kind = "csv"
	KindPDF         Kind = "pdf"
	KindUnsupported Kind = "unsupported"
)

// DetectKind classifies a file by its extension, case-insensitively.
func DetectKind(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return KindCSV
	case ".pdf":
		return KindPDF
	default:
		return KindUnsupported
	}
}

// Accepted reports whether the kind can be uploaded.
func (k Kind) Accepted() bool { return k == KindCSV || k == KindPDF }

// Label is the human-readable detection result.
func (k Kind) Label() string {
	switch k {
	case KindCSV:
		return "CSV detected"
	case KindPDF:
		return "PDF detected"
	default:
		return "Unsupported file type"
	}
}

// FileStatus is the one-line status shown after a file is picked.
type FileStatus struct {
	Name     string `json:"name"`
	SizeKB   int64  `json:"size_kb"`
	Kind     Kind   `json:"kind"`
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

// DescribeFile builds the "name • N KB • CSV detected" status line.
func DescribeFile(name string, size int64) FileStatus {
	kind := DetectKind(name)
	kb := int64(math.Round(float64(size) / 1024))
	return FileStatus{
		Name:     name,
		SizeKB:   kb,
		Kind:     kind,
		Accepted: kind.Accepted(),
		Message:  fmt.Sprintf("%s • %d KB • %s", name, kb, kind.Label()),
	}
}

// HeaderFields returns the column names on the first line of a CSV stream. Fields are
// split on commas, trimmed, stripped of one pair of surrounding quotes and dropped when
// empty. A line longer than maxHeaderBytes is cut there and its partial last field
// dropped. A read failure yields an empty list.
func HeaderFields(r io.Reader) []string {
	br := bufio.NewReaderSize(io.LimitReader(r, maxHeaderBytes+1), 4096)
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return []string{}
	}
	if len(line) > maxHeaderBytes && !strings.HasSuffix(line, "\n") {
		line = line[:maxHeaderBytes]
		if i := strings.LastIndexByte(line, ','); i >= 0 {
			line = line[:i]
		} else {
			line = ""
		}
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	line = strings.TrimPrefix(line, "\ufeff")
	line = norm.NFC.String(line)

	fields := []string{}
	for _, raw := range strings.Split(line, ",") {
		f := strings.TrimSpace(raw)
		f = strings.TrimPrefix(f, `"`)
		f = strings.TrimSuffix(f, `"`)
		if f == "" {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// MergeFields prefers the field list returned by the scorer and falls back to the
// locally sniffed header.
func MergeFields(scored, sniffed []string) []string {
	if len(scored) > 0 {
		return scored
	}
	if sniffed == nil {
		return []string{}
	}
	return sniffed
}
