package resultwriter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// ReadResult is the parsed shape of one result file: its header, the
// record lines (in order), and the footer if present.
type ReadResult struct {
	Header   map[string]any
	Records  []map[string]any
	Footer   map[string]any
	Complete bool
}

// Read parses path line by line. A file without a footer line is still
// fully parseable record-by-record and is classified incomplete rather
// than treated as an error (spec §4.F, §8 invariant 3).
func Read(path string) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("resultwriter: open %s: %w", path, err)
	}
	defer f.Close()

	res := &ReadResult{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			return nil, fmt.Errorf("resultwriter: malformed line in %s: %w", path, err)
		}

		if first {
			res.Header = obj
			first = false
			continue
		}
		if t, _ := obj["type"].(string); t == "footer" {
			res.Footer = obj
			res.Complete = true
			continue
		}
		res.Records = append(res.Records, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("resultwriter: scan %s: %w", path, err)
	}
	return res, nil
}
