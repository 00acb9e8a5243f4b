// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bufio"
	"io"
	"strings"
)

// maxSSELine bounds a single server-sent event line.
const maxSSELine = 1 << 20

// readSSE calls fn with the data payload of every server-sent event in r,
// in order. Multi-line data fields are joined with newlines. It stops at
// the first error returned by fn.
func readSSE(r io.Reader, fn func(data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxSSELine)

	var data []string
	flush := func() error {
		if len(data) == 0 {
			return nil
		}
		payload := strings.Join(data, "\n")
		data = data[:0]
		return fn(payload)
	}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(v, " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return flush()
}
