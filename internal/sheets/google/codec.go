package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	headerMarker = "budgetsync-snapshot"
	// Sheets caps a cell at 50000 characters.
	chunkSize = 40000
)

// encodeRows lays a snapshot out as a header row followed by one row per
// chunk of the body:
//
//	A1: marker  B1: revision  C1: chunk count  D1: pushed at
//	A2..An: body chunks
func encodeRows(body []byte, revision int64, pushedAt time.Time) [][]any {
	chunks := splitChunks(string(body), chunkSize)
	rows := make([][]any, 0, len(chunks)+1)
	rows = append(rows, []any{
		headerMarker,
		strconv.FormatInt(revision, 10),
		strconv.Itoa(len(chunks)),
		pushedAt.UTC().Format(time.RFC3339),
	})
	for _, c := range chunks {
		rows = append(rows, []any{c})
	}
	return rows
}

// decodeRows reverses encodeRows. An empty sheet is reported as not found;
// a sheet whose chunk count does not match its header is an error.
func decodeRows(values [][]any) (body []byte, revision int64, found bool, err error) {
	if len(values) == 0 || len(values[0]) == 0 {
		return nil, 0, false, nil
	}
	header := toStrings(values[0])
	if header[0] != headerMarker || len(header) < 3 {
		return nil, 0, false, fmt.Errorf("unexpected sync sheet header: %v", header)
	}
	revision, err = strconv.ParseInt(header[1], 10, 64)
	if err != nil {
		return nil, 0, false, fmt.Errorf("parse revision %q: %w", header[1], err)
	}
	count, err := strconv.Atoi(header[2])
	if err != nil {
		return nil, 0, false, fmt.Errorf("parse chunk count %q: %w", header[2], err)
	}

	var sb strings.Builder
	seen := 0
	for _, row := range values[1:] {
		if seen == count {
			break
		}
		if len(row) == 0 {
			return nil, 0, false, fmt.Errorf("empty chunk row %d of %d", seen+1, count)
		}
		sb.WriteString(fmt.Sprint(row[0]))
		seen++
	}
	if seen != count {
		return nil, 0, false, fmt.Errorf("incomplete snapshot: %d of %d chunks", seen, count)
	}
	return []byte(sb.String()), revision, true, nil
}

// splitChunks cuts s into pieces of at most size bytes without splitting a
// UTF-8 sequence.
func splitChunks(s string, size int) []string {
	var out []string
	for len(s) > size {
		end := size
		for end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
		out = append(out, s[:end])
		s = s[end:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
