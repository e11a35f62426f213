package fileio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go_secure_send/networking"
)

// Credential is what a registered client keeps between runs
type Credential struct {
	User     string
	ClientID networking.ClientID
	Key      string // base64 DER private key
}

// ReadCredential loads the credential file. A missing file is
// ErrCredentialNotFound, which callers treat as "must register".
func ReadCredential(path string) (Credential, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credential{}, ErrCredentialNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	defer file.Close()
	return ParseCredential(file)
}

// ParseCredential expects user name, identity and private key, one per line
func ParseCredential(r io.Reader) (Credential, error) {
	lines, err := readLines(r, 3)
	if err != nil {
		return Credential{}, err
	}
	id, err := networking.ParseClientID(lines[1])
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return Credential{User: lines[0], ClientID: id, Key: lines[2]}, nil
}

// WriteCredential replaces the credential file. The file holds a private
// key, so it is only readable by the owner.
func WriteCredential(path string, cred Credential) error {
	if cred.User == "" || cred.Key == "" {
		return fmt.Errorf("%w: credential needs a user and a key", ErrConfig)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".credential-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := fmt.Fprintf(tmp, "%s\n%s\n%s\n", cred.User, cred.ClientID, cred.Key); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// RemoveCredential deletes the credential file if it exists
func RemoveCredential(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
