package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go_secure_send/fileio"
	"go_secure_send/testutil/fakeserver"
	"go_secure_send/testutil/testlog"
)

func writeRegistration(t *testing.T, endpoint string) (dir, reg string) {
	t.Helper()
	dir = t.TempDir()
	report := filepath.Join(dir, "report.bin")
	if err := os.WriteFile(report, []byte("quarterly numbers\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	reg = filepath.Join(dir, "transfer.info")
	body := fmt.Sprintf("%s\nbob\n%s\n", endpoint, report)
	if err := os.WriteFile(reg, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, reg
}

func TestRunTransfersFile(t *testing.T) {
	log := testlog.Start(t)
	srv := fakeserver.New(fakeserver.Hooks{}, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, err := srv.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback unavailable: %v", err)
	}

	dir, reg := writeRegistration(t, addr.String())
	cred := filepath.Join(dir, "me.info")
	if code := run([]string{"client", "-r", reg, "-u", cred}); code != exitOK {
		t.Fatalf("expected exit %d, got %d", exitOK, code)
	}
	if _, err := fileio.ReadCredential(cred); err != nil {
		t.Fatalf("credential not written: %v", err)
	}
	if uploads := srv.Uploads(); len(uploads) != 1 || string(uploads[0].Data) != "quarterly numbers\n" {
		t.Fatalf("unexpected uploads: %+v", uploads)
	}
}

func TestRunSetupFailures(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	badConfig := filepath.Join(dir, "client.toml")
	if err := os.WriteFile(badConfig, []byte("max_errors = 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := map[string][]string{
		"missing registration": {"client", "-r", filepath.Join(dir, "absent.info")},
		"invalid config":       {"client", "-c", badConfig},
		"dscp out of range":    {"client", "-d", "64"},
	}
	for name, argv := range cases {
		if code := run(argv); code != exitSetup {
			t.Fatalf("%s: expected exit %d, got %d", name, exitSetup, code)
		}
	}
}

func TestRunReportsTransferFailure(t *testing.T) {
	log := testlog.Start(t)
	srv := fakeserver.New(fakeserver.Hooks{FailRegistrations: 10}, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, err := srv.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback unavailable: %v", err)
	}

	dir, reg := writeRegistration(t, addr.String())
	code := run([]string{"client", "-r", reg, "-u", filepath.Join(dir, "me.info")})
	if code != exitTransfer {
		t.Fatalf("expected exit %d, got %d", exitTransfer, code)
	}
}
