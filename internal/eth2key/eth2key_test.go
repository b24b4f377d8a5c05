package eth2key

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesUsableKeyPair(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	assert.Len(t, kp.SecretBytes(), 32)
	assert.NotEmpty(t, kp.PublicKeyHex())

	raw, err := hex.DecodeString(strings.TrimPrefix(kp.PublicKeyHex(), "0x"))
	require.NoError(t, err)
	assert.Len(t, raw, 33)
}

func TestFromSecretBytesRoundTrip(t *testing.T) {
	original, err := Generate()
	require.NoError(t, err)

	restored, err := FromSecretBytes(original.SecretBytes())
	require.NoError(t, err)

	assert.Equal(t, original.PublicKeyHex(), restored.PublicKeyHex())
}

func TestFromSecretHexAcceptsWithAndWithoutPrefix(t *testing.T) {
	original, err := Generate()
	require.NoError(t, err)

	hexSecret := "0x" + hex.EncodeToString(original.SecretBytes())

	withPrefix, err := FromSecretHex(hexSecret)
	require.NoError(t, err)

	withoutPrefix, err := FromSecretHex(hexSecret[2:])
	require.NoError(t, err)

	assert.Equal(t, original.PublicKeyHex(), withPrefix.PublicKeyHex())
	assert.Equal(t, original.PublicKeyHex(), withoutPrefix.PublicKeyHex())
}

func TestFromSecretBytesRejectsWrongLength(t *testing.T) {
	_, err := FromSecretBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}
