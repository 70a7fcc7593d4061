package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenIssuer(t *testing.T) {
	_, err := NewTokenIssuer("short", time.Hour)
	require.Error(t, err)

	ti, err := NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	userID := uuid.New()
	token, expires, err := ti.Issue(userID)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	got, err := ti.Verify(token)
	require.NoError(t, err)
	require.Equal(t, userID, got)

	t.Run("tampered", func(t *testing.T) {
		_, err := ti.Verify(token[:len(token)-2] + "xx")
		require.Error(t, err)
	})

	t.Run("different secret", func(t *testing.T) {
		other, err := NewTokenIssuer(strings.Repeat("z", 32), time.Hour)
		require.NoError(t, err)
		_, err = other.Verify(token)
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := NewTokenIssuer(testSecret, time.Minute)
		require.NoError(t, err)
		expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		old, _, err := expired.Issue(userID)
		require.NoError(t, err)

		_, err = ti.Verify(old)
		require.Error(t, err)
	})
}

func TestPassword(t *testing.T) {
	_, err := HashPassword("short")
	require.ErrorIs(t, err, ErrWeakPassword)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	require.True(t, CheckPassword(hash, "correct horse"))
	require.False(t, CheckPassword(hash, "wrong horse"))
	require.False(t, CheckPassword("not-a-hash", "correct horse"))
}
