package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	svc := NewService("s3cret", time.Hour)

	token, err := svc.Issue("alice")
	require.NoError(t, err)

	nick, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", nick)
}

func TestVerifyRejectsOtherSecret(t *testing.T) {
	token, err := NewService("one", time.Hour).Issue("alice")
	require.NoError(t, err)

	_, err = NewService("two", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpired(t *testing.T) {
	svc := NewService("s3cret", time.Minute)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := svc.Issue("alice")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyGarbage(t *testing.T) {
	_, err := NewService("s3cret", 0).Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
