package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	v, err := NewVerifier("s3cret", "careplatform", "fanout")
	require.NoError(t, err)

	token, err := v.Issue(42, []string{"therapist"}, []int64{3, 4}, time.Minute)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, []string{"therapist"}, claims.Roles)
	assert.True(t, claims.InGroup(4))
	assert.False(t, claims.InGroup(5))
}

func TestVerifyRejects(t *testing.T) {
	v, _ := NewVerifier("s3cret", "careplatform", "fanout")
	other, _ := NewVerifier("other", "careplatform", "fanout")
	wrongAud, _ := NewVerifier("s3cret", "careplatform", "elsewhere")

	forged, err := other.Issue(1, nil, nil, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.Error(t, err)

	expired, err := v.Issue(1, nil, nil, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.Error(t, err)

	aud, err := wrongAud.Issue(1, nil, nil, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(aud)
	assert.Error(t, err)

	_, err = v.Verify("not-a-token")
	assert.Error(t, err)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("", "", "")
	assert.Error(t, err)
}
