// Package decryptor reverses the upstream webhook encryption: AES-CBC keyed
// by the raw client secret, with an IV derived from the client ID and PKCS#7
// padding.
package decryptor

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"
)

// IVSize is the AES block size; the derived IV is always this long.
const IVSize = aes.BlockSize

var (
	ErrInvalidEncoding  = errors.New("invalid encoding")
	ErrInvalidKeyLength = errors.New("invalid key length")
	ErrInvalidPadding   = errors.New("invalid padding")
)

// DeriveIV truncates identifier to 16 bytes, or right-pads it with zero bytes.
func DeriveIV(identifier string) []byte {
	iv := make([]byte, IVSize)
	copy(iv, identifier)
	return iv
}

// Decrypt base64-decodes encryptedB64, decrypts it with AES-CBC using
// keyMaterial as the key and DeriveIV(identifier) as the IV, strips PKCS#7
// padding and returns the UTF-8 plaintext.
//
// The whole buffer is decrypted before the padding byte is inspected, so the
// work done does not depend on the key. The padding check itself can still
// distinguish well-formed from malformed padding.
func Decrypt(encryptedB64, identifier, keyMaterial string) (string, error) {
	block, err := newBlock(keyMaterial)
	if err != nil {
		return "", err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedB64)
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", ErrInvalidEncoding, err)
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d is not a multiple of %d",
			ErrInvalidEncoding, len(ciphertext), aes.BlockSize)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, DeriveIV(identifier)).CryptBlocks(plaintext, ciphertext)

	unpadded, err := unpad(plaintext)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(unpadded) {
		return "", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrInvalidEncoding)
	}
	return string(unpadded), nil
}

// Encrypt is the inverse of Decrypt: PKCS#7 pad, AES-CBC, base64.
func Encrypt(plaintext, identifier, keyMaterial string) (string, error) {
	block, err := newBlock(keyMaterial)
	if err != nil {
		return "", err
	}

	padded := pad([]byte(plaintext))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, DeriveIV(identifier)).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// ValidateKey reports ErrInvalidKeyLength unless keyMaterial is a usable AES
// key.
func ValidateKey(keyMaterial string) error {
	_, err := newBlock(keyMaterial)
	return err
}

func newBlock(keyMaterial string) (cipher.Block, error) {
	block, err := aes.NewCipher([]byte(keyMaterial))
	if err != nil {
		var sizeErr aes.KeySizeError
		if errors.As(err, &sizeErr) {
			return nil, fmt.Errorf("%w: %d bytes (want 16, 24 or 32)", ErrInvalidKeyLength, int(sizeErr))
		}
		return nil, err
	}
	return block, nil
}

// unpad reads the pad length from the last byte of buf. Only the length byte
// is validated; the remaining pad bytes are dropped unchecked.
func unpad(buf []byte) ([]byte, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrInvalidPadding)
	}
	n := int(buf[len(buf)-1])
	if n == 0 || n > aes.BlockSize || n > len(buf) {
		return nil, fmt.Errorf("%w: pad length %d", ErrInvalidPadding, n)
	}
	return buf[:len(buf)-n], nil
}

func pad(buf []byte) []byte {
	n := aes.BlockSize - len(buf)%aes.BlockSize
	return append(buf, bytes.Repeat([]byte{byte(n)}, n)...)
}
