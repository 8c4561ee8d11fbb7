package step

import (
	"bytes"
	"io"
	"regexp"
	"sync"
)

// DefaultWarningPattern matches compiler-style warning lines such as
// "warning: unused variable" or "warning[E0001]:".
var DefaultWarningPattern = regexp.MustCompile(`(?i)\bwarning(\[[^\]]*\])?:`)

// lineCounter counts the complete lines written to it that match a pattern.
type lineCounter struct {
	pattern *regexp.Regexp
	partial []byte
	count   int
}

func (w *lineCounter) Write(p []byte) (int, error) {
	data := append(w.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		if w.pattern.Match(data[:i]) {
			w.count++
		}
		data = data[i+1:]
	}
	w.partial = append(w.partial[:0:0], data...)
	return len(p), nil
}

// Count returns the matches so far, including an unterminated last line.
func (w *lineCounter) Count() int {
	n := w.count
	if len(w.partial) > 0 && w.pattern.Match(w.partial) {
		n++
	}
	return n
}

// prefixWriter prefixes every line with a label and forwards complete lines
// to a shared writer under a lock, so output of concurrent cells does not
// interleave mid-line.
type prefixWriter struct {
	mu      *sync.Mutex
	out     io.Writer
	prefix  []byte
	partial []byte
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	data := append(w.partial, p...)
	var buf bytes.Buffer
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		buf.Write(w.prefix)
		buf.Write(data[:i+1])
		data = data[i+1:]
	}
	w.partial = append(w.partial[:0:0], data...)
	if buf.Len() == 0 {
		return len(p), nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush writes an unterminated last line.
func (w *prefixWriter) Flush() {
	if len(w.partial) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = w.out.Write(append(append(append([]byte{}, w.prefix...), w.partial...), '\n'))
	w.partial = nil
}
