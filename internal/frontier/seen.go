package frontier

import "sync"

// SeenSet records every URL handed out during the process lifetime.
type SeenSet struct {
	urls map[string]bool
	mu   sync.Mutex
}

func NewSeenSet() *SeenSet {
	return &SeenSet{urls: make(map[string]bool)}
}

// MarkIfNotSeen returns true exactly once per URL.
func (s *SeenSet) MarkIfNotSeen(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.urls[url] {
		return false
	}
	s.urls[url] = true
	return true
}

func (s *SeenSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}
