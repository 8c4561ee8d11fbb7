package step

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadEnvFile parses the export file written by a step. Lines are KEY=VALUE;
// multi-line values use KEY<<DELIM, the value lines, then DELIM on its own
// line. Blank lines and lines starting with # are ignored. A missing file
// exports nothing.
func ReadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseEnv(f)
}

// ParseEnv parses export lines from r.
func ParseEnv(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(strings.TrimSpace(text), "#") {
			continue
		}

		if key, delim, ok := strings.Cut(text, "<<"); ok && !strings.Contains(key, "=") {
			key, delim = strings.TrimSpace(key), strings.TrimSpace(delim)
			if key == "" || delim == "" {
				return nil, fmt.Errorf("line %d: malformed heredoc", line)
			}
			var value []string
			closed := false
			for scanner.Scan() {
				line++
				l := strings.TrimRight(scanner.Text(), "\r")
				if l == delim {
					closed = true
					break
				}
				value = append(value, l)
			}
			if !closed {
				return nil, fmt.Errorf("line %d: heredoc for %s is not terminated by %q", line, key, delim)
			}
			vars[key] = strings.Join(value, "\n")
			continue
		}

		key, value, ok := strings.Cut(text, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE", line)
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}
