package customCrypto

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Sign_Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("message"))

	signature, err := SignRSA(key, digest[:])
	require.NoError(t, err)
	require.True(t, VerifyRSA(&key.PublicKey, digest[:], signature))

	other := sha256.Sum256([]byte("other"))
	require.False(t, VerifyRSA(&key.PublicKey, other[:], signature))
}

// The hybrid construction carries plaintexts far beyond a bare RSA block.
func Test_Encrypt_Decrypt_Large_Plaintext(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	plaintext := bytes.Repeat([]byte("onion"), 2000)

	ciphertext, err := EncryptRSA(&key.PublicKey, plaintext)
	require.NoError(t, err)

	decrypted, err := DecryptRSA(key, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func Test_Decrypt_Wrong_Key_Fails(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	wrong, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ciphertext, err := EncryptRSA(&key.PublicKey, []byte("secret"))
	require.NoError(t, err)

	_, err = DecryptRSA(wrong, ciphertext)
	require.Error(t, err)
}

func Test_Decrypt_Truncated_Fails(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, err = DecryptRSA(key, []byte{})
	require.Error(t, err)

	_, err = DecryptRSA(key, []byte{0xff, 0xff, 0x01})
	require.Error(t, err)
}

func Test_PublicKey_Marshal_RoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	encoded, err := MarshalPublicKey(&key.PublicKey)
	require.NoError(t, err)

	decoded, err := UnmarshalPublicKey(encoded)
	require.NoError(t, err)
	require.True(t, key.PublicKey.Equal(decoded))

	_, err = UnmarshalPublicKey("not base64!")
	require.Error(t, err)
}
