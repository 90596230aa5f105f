package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(now time.Time) (*Issuer, *time.Time) {
	clock := now
	i := NewIssuer("test-secret")
	i.now = func() time.Time { return clock }
	return i, &clock
}

func TestIssueAndParse(t *testing.T) {
	i, _ := newTestIssuer(time.Now())

	token, err := i.Issue("pid-1", "Alice")
	require.NoError(t, err)

	claims, err := i.Parse("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "pid-1", claims.PlayerID)
	assert.Equal(t, "Alice", claims.Name)
}

func TestParseRejects(t *testing.T) {
	i, clock := newTestIssuer(time.Now())
	token, err := i.Issue("pid-1", "Alice")
	require.NoError(t, err)

	other := NewIssuer("other-secret")
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = i.Parse("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = i.Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	*clock = clock.Add(73 * time.Hour)
	_, err = i.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolve(t *testing.T) {
	start := time.Now()
	i, clock := newTestIssuer(start)

	t.Run("missing token issues a new identity", func(t *testing.T) {
		id, refreshed, err := i.Resolve("", "  Bob ")
		require.NoError(t, err)
		assert.True(t, refreshed)
		assert.NotEmpty(t, id.PlayerID)
		assert.Equal(t, "Bob", id.Name)
		assert.NotEmpty(t, id.Token)
	})

	t.Run("valid token keeps identity and token", func(t *testing.T) {
		token, err := i.Issue("pid-7", "Carol")
		require.NoError(t, err)

		id, refreshed, err := i.Resolve(token, "")
		require.NoError(t, err)
		assert.False(t, refreshed)
		assert.Equal(t, "pid-7", id.PlayerID)
		assert.Equal(t, "Carol", id.Name)
		assert.Equal(t, token, id.Token)
	})

	t.Run("token close to expiry is refreshed", func(t *testing.T) {
		*clock = start
		token, err := i.Issue("pid-8", "Dave")
		require.NoError(t, err)

		*clock = start.Add(71*time.Hour + 30*time.Minute)
		id, refreshed, err := i.Resolve(token, "")
		require.NoError(t, err)
		assert.True(t, refreshed)
		assert.Equal(t, "pid-8", id.PlayerID)

		claims, err := i.Parse(id.Token)
		require.NoError(t, err)
		assert.Equal(t, clock.Add(72*time.Hour).Unix(), claims.ExpiresAt)
	})

	t.Run("rename reissues token with same player id", func(t *testing.T) {
		*clock = start
		token, err := i.Issue("pid-9", "Eve")
		require.NoError(t, err)

		id, refreshed, err := i.Resolve(token, "Mallory")
		require.NoError(t, err)
		assert.True(t, refreshed)
		assert.Equal(t, "pid-9", id.PlayerID)
		assert.Equal(t, "Mallory", id.Name)
	})
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Player", SanitizeName("", ""))
	assert.Equal(t, "Old", SanitizeName("   ", "Old"))
	assert.Equal(t, strings.Repeat("あ", 20), SanitizeName(strings.Repeat("あ", 25), ""))
}
