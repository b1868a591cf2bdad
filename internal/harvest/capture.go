package harvest

import (
	"strings"
	"sync"
)

// Capture is one raw structured payload observed from the external source,
// read-only once appended.
type Capture struct {
	// URL is the originating request URL.
	URL string
	// ContentKind is the declared MIME type of the response.
	ContentKind string
	// Payload is the raw response body.
	Payload []byte
}

// CaptureLog is the append-only capture accumulation for a single harvest
// run. Only the response-capture callback appends; every other component
// reads snapshots. Safe for concurrent use.
type CaptureLog struct {
	mu       sync.Mutex
	captures []Capture
}

// NewCaptureLog returns an empty capture log.
func NewCaptureLog() *CaptureLog {
	return &CaptureLog{}
}

// Append records one capture.
func (l *CaptureLog) Append(c Capture) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.captures = append(l.captures, c)
}

// Snapshot returns a copy of the captures accumulated so far.
func (l *CaptureLog) Snapshot() []Capture {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Capture, len(l.captures))
	copy(out, l.captures)
	return out
}

// Payloads returns copies of the raw payloads accumulated so far, in
// capture order.
func (l *CaptureLog) Payloads() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, 0, len(l.captures))
	for _, c := range l.captures {
		out = append(out, c.Payload)
	}
	return out
}

// Len returns the number of captures accumulated so far.
func (l *CaptureLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.captures)
}

// TopicalURL reports whether url matches the allow-list: a case-insensitive
// substring match against topical words like "event" or "calendar".
func TopicalURL(url string, allow []string) bool {
	lower := strings.ToLower(url)
	for _, word := range allow {
		if word == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(word)) {
			return true
		}
	}
	return false
}

// StructuredKind reports whether a declared content kind looks like
// structured data worth normalizing.
func StructuredKind(kind string) bool {
	lower := strings.ToLower(kind)
	return strings.Contains(lower, "json") || strings.Contains(lower, "javascript")
}
