package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher, err := NewCipher("test-encryption-key")
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("s3cret-password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-password", encrypted)

	decrypted, err := cipher.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-password", decrypted)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	cipher, err := NewCipher("test-encryption-key")
	require.NoError(t, err)

	first, err := cipher.Encrypt("same-input")
	require.NoError(t, err)
	second, err := cipher.Encrypt("same-input")
	require.NoError(t, err)

	// Fresh nonce per encryption
	assert.NotEqual(t, first, second)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	cipher, err := NewCipher("key-one")
	require.NoError(t, err)
	other, err := NewCipher("key-two")
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("password")
	require.NoError(t, err)

	_, err = other.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestDecryptRejectsTamperedPayload(t *testing.T) {
	cipher, err := NewCipher("test-encryption-key")
	require.NoError(t, err)

	_, err = cipher.Decrypt("not-base64!!!")
	assert.Error(t, err)

	_, err = cipher.Decrypt("c2hvcnQ=") // valid base64, too short for a nonce
	assert.Error(t, err)
}

func TestEmptyKeyRejected(t *testing.T) {
	_, err := NewCipher("")
	assert.Error(t, err)
}
