package engine

import (
	"math/rand"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/config"
)

func testSessionConfig(budget int) config.SessionConfig {
	return config.SessionConfig{
		MaxRequestsPerSession: budget,
		UserAgents:            config.DefaultUserAgents,
		AcceptLanguages:       config.DefaultAcceptLanguages,
	}
}

func TestSessionPool_BudgetRotation(t *testing.T) {
	pool := NewSessionPool(testSessionConfig(2), rand.New(rand.NewSource(1)))

	first := pool.Current()
	require.NotNil(t, first)
	assert.Same(t, first, pool.Current(), "identity under budget must be stable")

	first.Consume()
	assert.Same(t, first, pool.Current())

	first.Consume()
	second := pool.Current()
	assert.NotEqual(t, first.ID, second.ID, "exhausted budget must mint a fresh identity")
	assert.Equal(t, 1, pool.Rotations())
	assert.Zero(t, second.RequestCount())
}

func TestSessionPool_ForcedRotation(t *testing.T) {
	pool := NewSessionPool(testSessionConfig(20), rand.New(rand.NewSource(1)))

	first := pool.Current()
	second := pool.Rotate()
	third := pool.Rotate()

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, second.ID, third.ID)
	assert.Equal(t, 2, pool.Rotations())
}

func TestSessionPool_RetireCallback(t *testing.T) {
	pool := NewSessionPool(testSessionConfig(20), rand.New(rand.NewSource(1)))

	var retired []string
	pool.OnRetire(func(id string) { retired = append(retired, id) })

	first := pool.Current()
	pool.Rotate()
	pool.Rotate()

	require.Len(t, retired, 2)
	assert.Equal(t, first.ID, retired[0])
}

func TestSessionPool_HeaderRandomizationDeterministic(t *testing.T) {
	mintAgents := func(seed int64) []string {
		pool := NewSessionPool(testSessionConfig(20), rand.New(rand.NewSource(seed)))
		agents := []string{pool.Current().Headers["User-Agent"]}
		for i := 0; i < 5; i++ {
			agents = append(agents, pool.Rotate().Headers["User-Agent"])
		}
		return agents
	}

	assert.Equal(t, mintAgents(42), mintAgents(42), "same seed must mint the same header sequence")
}

func TestIdentity_StoreCookieReplacesByName(t *testing.T) {
	pool := NewSessionPool(testSessionConfig(20), rand.New(rand.NewSource(1)))
	id := pool.Current()

	id.StoreCookie(http.Cookie{Name: "session-token", Value: "v1"})
	id.StoreCookie(http.Cookie{Name: "locale", Value: "en-IN"})
	id.StoreCookie(http.Cookie{Name: "session-token", Value: "v2"})

	require.Len(t, id.Cookies, 2)
	assert.Equal(t, "v2", id.Cookies[0].Value)
	assert.Equal(t, "locale", id.Cookies[1].Name)
}

func TestSessionPool_IdentityHeaders(t *testing.T) {
	pool := NewSessionPool(testSessionConfig(20), rand.New(rand.NewSource(7)))
	id := pool.Current()

	assert.NotEmpty(t, id.ID)
	assert.Contains(t, config.DefaultUserAgents, id.Headers["User-Agent"])
	assert.Contains(t, config.DefaultAcceptLanguages, id.Headers["Accept-Language"])
	assert.NotEmpty(t, id.Headers["Accept"])
	assert.False(t, id.CreatedAt.IsZero())
}
