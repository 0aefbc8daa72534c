package realtime

import "sync"

// Selection holds the id of the conversation the operator has open. It is
// read on every event, so routing always sees the current selection rather
// than the one in effect when the connection was opened.
type Selection struct {
	mu sync.RWMutex
	id string
}

// Set replaces the selected conversation id. An empty id clears it.
func (s *Selection) Set(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// Get returns the selected conversation id.
func (s *Selection) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Is reports whether id is the selected conversation.
func (s *Selection) Is(id string) bool {
	return id != "" && s.Get() == id
}
