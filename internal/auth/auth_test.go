package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicTokenRoundTrip(t *testing.T) {
	token := EncodeBasicToken("collector", "p@ss:word")
	assert.Equal(t, "Y29sbGVjdG9yOnBAc3M6d29yZA==", token)

	user, pass, err := DecodeBasicToken(token)
	require.NoError(t, err)
	assert.Equal(t, "collector", user)
	assert.Equal(t, "p@ss:word", pass, "only the first colon separates user from password")
	assert.Equal(t, "Basic "+token, BasicAuthHeader(token))
}

func TestDecodeBasicTokenMalformed(t *testing.T) {
	_, _, err := DecodeBasicToken("%%%")
	assert.ErrorIs(t, err, ErrTokenMalformed)

	_, _, err = DecodeBasicToken("bm9jb2xvbg==") // "nocolon"
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestSealerRoundTrip(t *testing.T) {
	sealer, err := NewSealer("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := sealer.Seal("dXNlcjpwYXNz")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "dXNlcjpwYXNz")

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "dXNlcjpwYXNz", opened)

	again, err := sealer.Seal("dXNlcjpwYXNz")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "each seal uses a fresh salt and nonce")
}

func TestSealerRejectsWrongSecretAndGarbage(t *testing.T) {
	sealer, err := NewSealer("secret-one")
	require.NoError(t, err)
	other, err := NewSealer("secret-two")
	require.NoError(t, err)

	sealed, err := sealer.Seal("token")
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrSealedInvalid)

	_, err = sealer.Open("not-base64!")
	assert.ErrorIs(t, err, ErrSealedInvalid)

	_, err = NewSealer("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}
