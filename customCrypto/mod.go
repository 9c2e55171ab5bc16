package customCrypto

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// SignRSA signs a SHA-256 digest with the RSA private key.
func SignRSA(privateKey *rsa.PrivateKey, digest []byte) ([]byte, error) {
	signature, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, digest)
	if err != nil {
		return nil, xerrors.Errorf("error while signing digest: %v", err)
	}

	return signature, nil
}

// VerifyRSA checks an RSA signature over a SHA-256 digest.
func VerifyRSA(publicKey *rsa.PublicKey, digest, signature []byte) bool {
	return rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest, signature) == nil
}

// EncryptRSA seals a plaintext of arbitrary length for the holder of the
// private key matching publicKey. A fresh AES-256 key encrypts the plaintext
// under GCM and is itself wrapped with RSA-OAEP, so the ciphertext can carry
// more than a bare RSA block. Layout: [2-byte wrapped-key length] [wrapped
// key] [nonce || sealed plaintext].
func EncryptRSA(publicKey *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	aesKey := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, aesKey); err != nil {
		return nil, xerrors.Errorf("error while generating AES key: %v", err)
	}

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, aesKey, nil)
	if err != nil {
		return nil, xerrors.Errorf("error while wrapping AES key: %v", err)
	}

	sealed, err := EncryptAES(aesKey, plaintext)
	if err != nil {
		return nil, err
	}

	ciphertext := make([]byte, 2+len(wrappedKey)+len(sealed))
	binary.BigEndian.PutUint16(ciphertext, uint16(len(wrappedKey)))
	copy(ciphertext[2:], wrappedKey)
	copy(ciphertext[2+len(wrappedKey):], sealed)

	return ciphertext, nil
}

// DecryptRSA opens a ciphertext produced by EncryptRSA.
func DecryptRSA(privateKey *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 2 {
		return nil, xerrors.Errorf("ciphertext too short: %d bytes", len(ciphertext))
	}

	keyLen := int(binary.BigEndian.Uint16(ciphertext))
	if len(ciphertext) < 2+keyLen {
		return nil, xerrors.Errorf("ciphertext shorter than its wrapped key length")
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, ciphertext[2:2+keyLen], nil)
	if err != nil {
		return nil, xerrors.Errorf("error while unwrapping AES key: %v", err)
	}

	return DecryptAES(aesKey, ciphertext[2+keyLen:])
}

// EncryptAES seals a plaintext under AES-256-GCM, the nonce prepended.
func EncryptAES(key []byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, xerrors.Errorf("error while generating new AES cipher for encryption: %v", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, xerrors.Errorf("error while wrapping AES cipher in GCM for encryption: %v", err)
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, xerrors.Errorf("error while generating nonce: %v", err)
	}

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptAES opens a ciphertext produced by EncryptAES.
func DecryptAES(key []byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, xerrors.Errorf("error while generating new AES cipher for decryption: %v", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, xerrors.Errorf("error while wrapping AES cipher in GCM for decryption: %v", err)
	}

	nonceSize := aesgcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, xerrors.Errorf("wrong size of ciphertext for decryption: %d bytes", len(ciphertext))
	}

	nonce := ciphertext[:nonceSize]
	ciphertext = ciphertext[nonceSize:]

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, xerrors.Errorf("error while decrypting ciphertext: %v", err)
	}

	return plaintext, nil
}

// MarshalPublicKey renders an RSA public key for the wire.
func MarshalPublicKey(publicKey *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", xerrors.Errorf("error while marshaling public key: %v", err)
	}

	return base64.StdEncoding.EncodeToString(der), nil
}

// UnmarshalPublicKey parses a key rendered by MarshalPublicKey.
func UnmarshalPublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, xerrors.Errorf("error while decoding public key: %v", err)
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, xerrors.Errorf("error while parsing public key: %v", err)
	}

	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, xerrors.Errorf("public key is not an RSA key")
	}

	return publicKey, nil
}
