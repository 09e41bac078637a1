package cachewire

import "errors"

var ErrNoServers = errors.New("cachewire: no servers available")

// Servers provides the list of server addresses a Client routes to.
// The list may change between calls; the client re-reads it on every request.
type Servers interface {
	List() []string
}

type staticServers struct {
	addresses []string
}

// NewStaticServers returns a fixed server list.
func NewStaticServers(addresses ...string) Servers {
	return &staticServers{addresses: addresses}
}

func (s *staticServers) List() []string {
	return s.addresses
}
