package fileio

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"go_secure_send/networking"
	"go_secure_send/testutil/testlog"
)

func TestCredentialRoundTrip(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "me.info")
	want := Credential{
		User:     "alice",
		ClientID: networking.ClientID{0xde, 0xad, 0xbe, 0xef, 15: 1},
		Key:      "MIICXAIBAAKBgQ==",
	}
	if err := WriteCredential(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 || lines[1] != want.ClientID.String() {
		t.Fatalf("unexpected credential text %q", raw)
	}
	if runtime.GOOS != "windows" {
		info, _ := os.Stat(path)
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Fatalf("expected mode 0600, got %o", perm)
		}
	}

	got, err := ReadCredential(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestCredentialBareHexIdentity(t *testing.T) {
	testlog.Start(t)

	cred, err := ParseCredential(strings.NewReader("bob\n00112233445566778899aabbccddeeff\nkey\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cred.ClientID[0] != 0x00 || cred.ClientID[15] != 0xff {
		t.Fatalf("unexpected identity %s", cred.ClientID)
	}
}

func TestCredentialMissingAndMalformed(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	if _, err := ReadCredential(filepath.Join(dir, "absent.info")); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
	if _, err := ParseCredential(strings.NewReader("bob\nnot-hex\nkey\n")); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for bad identity, got %v", err)
	}
	if _, err := ParseCredential(strings.NewReader("bob\n")); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for short credential, got %v", err)
	}
}

func TestRemoveCredential(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "me.info")
	if err := RemoveCredential(path); err != nil {
		t.Fatalf("expected removing an absent credential to succeed, got %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := RemoveCredential(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected credential to be gone, got %v", err)
	}
}
