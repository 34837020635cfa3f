package publish

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/pagepress/pagepress/internal/progress"
)

var sidebandPattern = regexp.MustCompile(`(Counting|Compressing|Receiving|Writing|Resolving|Enumerating) objects:\s+(\d{1,3})%`)

// sidebandWriter turns git's progress stream into tracker updates. Lines are terminated by
// either \r or \n.
type sidebandWriter struct {
	mu      sync.Mutex
	tracker *progress.Tracker
	line    []byte
}

func newSidebandWriter(t *progress.Tracker) *sidebandWriter {
	return &sidebandWriter{tracker: t}
}

func (w *sidebandWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range p {
		if b == '\r' || b == '\n' {
			w.flush()
			continue
		}
		w.line = append(w.line, b)
	}
	return len(p), nil
}

func (w *sidebandWriter) flush() {
	line := strings.TrimSpace(strings.TrimPrefix(string(w.line), "remote:"))
	w.line = w.line[:0]
	if line == "" {
		return
	}
	m := sidebandPattern.FindStringSubmatch(line)
	if m == nil {
		w.tracker.SetMessage(line)
		return
	}
	pct, err := strconv.Atoi(m[2])
	if err != nil || pct > 100 {
		w.tracker.SetMessage(line)
		return
	}
	w.tracker.SetTotal(100)
	w.tracker.SetCurrent(pct, line)
}
