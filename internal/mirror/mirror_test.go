package mirror

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFallsBackToDefaultPool(t *testing.T) {
	s := New(nil)
	assert.Contains(t, DefaultPool, s.Pick())
}

func TestPickStaysInPool(t *testing.T) {
	pool := []string{"http://a.example", "http://b.example"}
	s := New(pool)
	for i := 0; i < 50; i++ {
		assert.Contains(t, pool, s.Pick())
	}
}

func TestArchiveURL(t *testing.T) {
	s := New([]string{"http://tokyo.kapeli.com"})
	assert.Equal(t, "http://tokyo.kapeli.com/feeds/Go.tgz", s.ArchiveURL("Go"))
}

func TestArchiveURLUsesEveryMirrorShape(t *testing.T) {
	s := New(nil)
	for i := 0; i < 20; i++ {
		u := s.ArchiveURL("Python_3")
		assert.True(t, strings.HasSuffix(u, "/feeds/Python_3.tgz"), u)
	}
}
