package handlers

import "sync"

// NavState guarda el vport que el cliente dice estar mirando. Es el
// identity.NavigationHint del state machine.
type NavState struct {
	mu    sync.RWMutex
	vport string
}

// Set fija el vport en pantalla ("" = ninguno).
func (n *NavState) Set(vportID string) {
	n.mu.Lock()
	n.vport = vportID
	n.mu.Unlock()
}

// Hint implementa identity.NavigationHint.
func (n *NavState) Hint() (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.vport, n.vport != ""
}
