package mirror

import (
	"fmt"
	"math/rand"
)

// DefaultPool lists the kapeli endpoints hosting identical docset archives.
var DefaultPool = []string{
	"http://sanfrancisco.kapeli.com",
	"http://sanfrancisco2.kapeli.com",
	"http://london.kapeli.com",
	"http://london2.kapeli.com",
	"http://london3.kapeli.com",
	"http://newyork.kapeli.com",
	"http://newyork2.kapeli.com",
	"http://sydney.kapeli.com",
	"http://tokyo.kapeli.com",
	"http://tokyo2.kapeli.com",
}

// Selector picks a download endpoint from a pool of equivalent mirrors.
// Selection is uniformly random with no health checking; a dead mirror
// simply fails the transfer.
type Selector struct {
	pool []string
}

// New builds a selector over pool, falling back to DefaultPool when empty.
func New(pool []string) *Selector {
	if len(pool) == 0 {
		pool = DefaultPool
	}
	return &Selector{pool: pool}
}

// Pick returns one mirror base URL.
func (s *Selector) Pick() string {
	return s.pool[rand.Intn(len(s.pool))]
}

// ArchiveURL resolves the archive location for a docset name on a randomly
// chosen mirror.
func (s *Selector) ArchiveURL(name string) string {
	return fmt.Sprintf("%s/feeds/%s.tgz", s.Pick(), name)
}
