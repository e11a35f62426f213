package networking

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	RSA_KEY_BITS = 1024
	AES_KEY_SIZE = 32 // AES-256
)

// Crypto handles the client side of the key exchange and file encryption.
// The RSA key pair is generated on first use unless a credential was imported.
type Crypto struct {
	private *rsa.PrivateKey
	aes     cipher.Block
	bits    int
}

// NewCrypto returns a Crypto that generates RSA keys of the given size
func NewCrypto(bits int) *Crypto {
	if bits <= 0 {
		bits = RSA_KEY_BITS
	}
	return &Crypto{bits: bits}
}

// ImportCredential loads a base64 DER (PKCS#1) private key
func (c *Crypto) ImportCredential(text string) error {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return fmt.Errorf("%w: credential is not base64: %v", ErrKeyExchange, err)
	}
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return fmt.Errorf("%w: credential is not an RSA private key: %v", ErrKeyExchange, err)
	}
	c.private = key
	return nil
}

// CredentialText returns the private key as base64 DER for the credential file
func (c *Crypto) CredentialText() (string, error) {
	if err := c.ensureKey(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PrivateKey(c.private)), nil
}

// PublicKeyBytes returns the PKCS#1 DER public key sent at registration
func (c *Crypto) PublicKeyBytes() ([]byte, error) {
	if err := c.ensureKey(); err != nil {
		return nil, err
	}
	return x509.MarshalPKCS1PublicKey(&c.private.PublicKey), nil
}

// DecryptSessionKey unwraps the AES key sent by the server and installs it
func (c *Crypto) DecryptSessionKey(sealed []byte) ([]byte, error) {
	if c.private == nil {
		return nil, fmt.Errorf("%w: no private key to unwrap session key", ErrKeyExchange)
	}
	key, err := rsa.DecryptOAEP(sha1.New(), nil, c.private, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyExchange, err)
	}
	if len(key) != AES_KEY_SIZE {
		return nil, fmt.Errorf("%w: session key is %d bytes, want %d", ErrKeyExchange, len(key), AES_KEY_SIZE)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyExchange, err)
	}
	c.aes = block
	return key, nil
}

// EncryptFile encrypts with the installed session key
func (c *Crypto) EncryptFile(plain []byte) ([]byte, error) {
	if c.aes == nil {
		return nil, ErrNoSession
	}
	return encryptCBC(c.aes, plain), nil
}

func (c *Crypto) ensureKey() error {
	if c.private != nil {
		return nil
	}
	key, err := rsa.GenerateKey(rand.Reader, c.bits)
	if err != nil {
		return fmt.Errorf("%w: generate rsa key: %v", ErrKeyExchange, err)
	}
	c.private = key
	return nil
}

// WrapSessionKey encrypts key for the holder of publicKey. The public key may
// carry trailing zero padding from its fixed-width wire column.
func WrapSessionKey(publicKey, key []byte) ([]byte, error) {
	der, err := trimDER(publicKey)
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyExchange, err)
	}
	sealed, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyExchange, err)
	}
	return sealed, nil
}

// EncryptCBC encrypts plain with AES-CBC, a zero IV and PKCS#7 padding
func EncryptCBC(key, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyExchange, err)
	}
	return encryptCBC(block, plain), nil
}

// DecryptCBC reverses EncryptCBC
func DecryptCBC(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyExchange, err)
	}
	if len(sealed) == 0 || len(sealed)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrDecoding, len(sealed))
	}
	iv := make([]byte, aes.BlockSize)
	plain := make([]byte, len(sealed))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, sealed)

	pad := int(plain[len(plain)-1])
	if pad == 0 || pad > aes.BlockSize || !bytes.Equal(plain[len(plain)-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecoding)
	}
	return plain[:len(plain)-pad], nil
}

func encryptCBC(block cipher.Block, plain []byte) []byte {
	// PKCS#7 always adds between 1 and 16 bytes.
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := make([]byte, len(plain)+pad)
	copy(padded, plain)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	iv := make([]byte, aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(padded, padded)
	return padded
}

// trimDER cuts a DER SEQUENCE down to its encoded length
func trimDER(b []byte) ([]byte, error) {
	if len(b) < 2 || b[0] != 0x30 {
		return nil, fmt.Errorf("%w: public key is not a DER sequence", ErrKeyExchange)
	}
	length, header := int(b[1]), 2
	if b[1]&0x80 != 0 {
		n := int(b[1] & 0x7f)
		if n == 0 || n > 2 || len(b) < 2+n {
			return nil, fmt.Errorf("%w: unsupported DER length", ErrKeyExchange)
		}
		length = 0
		for _, v := range b[2 : 2+n] {
			length = length<<8 | int(v)
		}
		header += n
	}
	if header+length > len(b) {
		return nil, fmt.Errorf("%w: truncated public key", ErrKeyExchange)
	}
	return b[:header+length], nil
}
