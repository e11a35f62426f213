package engine

import "go_secure_send/fileio"

// Transport moves whole frames. ReceiveFrame blocks until one response frame
// is available.
type Transport interface {
	SendFrame(frame []byte) error
	ReceiveFrame() ([]byte, error)
}

// Crypto owns the key pair and the session key
type Crypto interface {
	ImportCredential(text string) error
	CredentialText() (string, error)
	PublicKeyBytes() ([]byte, error)
	DecryptSessionKey(sealed []byte) ([]byte, error)
	EncryptFile(plain []byte) ([]byte, error)
}

// Storage reads local configuration and the file to send, and keeps the
// credential between runs.
type Storage interface {
	LoadRegistration() (fileio.Registration, error)
	LoadCredential() (fileio.Credential, error)
	SaveCredential(cred fileio.Credential) error
	DeleteCredential() error
	ReadFileBytes(path string) ([]byte, error)
	Checksum(path string) (uint32, error)
}
