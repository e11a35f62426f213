package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go_secure_send/client/comms"
	"go_secure_send/client/engine"
	"go_secure_send/client/worker"
	"go_secure_send/fileio"
	"go_secure_send/networking"
	"go_secure_send/networking/opcode"
	"go_secure_send/testutil/fakeserver"
	"go_secure_send/testutil/testlog"

	"github.com/rs/zerolog"
)

const reportSize = 100000

type workspace struct {
	registration string
	credential   string
	data         []byte
}

func newWorkspace(t *testing.T, endpoint string) workspace {
	t.Helper()
	dir := t.TempDir()

	data := make([]byte, reportSize)
	rand.New(rand.NewSource(7)).Read(data)
	report := filepath.Join(dir, "report.bin")
	if err := os.WriteFile(report, data, 0o644); err != nil {
		t.Fatal(err)
	}

	reg := filepath.Join(dir, "transfer.info")
	body := fmt.Sprintf("%s\nalice\n%s\n", endpoint, report)
	if err := os.WriteFile(reg, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return workspace{registration: reg, credential: filepath.Join(dir, "me.info"), data: data}
}

// runPiped runs one session against srv over an in-memory connection and
// waits for the server side to finish.
func runPiped(t *testing.T, srv *fakeserver.Server, ws workspace, log zerolog.Logger) (*engine.Engine, error) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	deadline := time.Now().Add(30 * time.Second)
	clientConn.SetDeadline(deadline)
	serverConn.SetDeadline(deadline)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(serverConn) }()

	storage := fileio.NewDiskStorage(ws.registration, ws.credential, log)
	e := engine.New(engine.DefaultConfig(), comms.NewClient(clientConn, 0, log),
		networking.NewCrypto(networking.RSA_KEY_BITS), storage, log)

	err := e.Start()
	if err == nil {
		err = e.Run()
	}
	// A fatal verdict leaves the server blocked on its reply.
	clientConn.Close()
	<-served
	return e, err
}

func equalCodes(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func names(codes []uint16) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = opcode.Name(c)
	}
	return out
}

func expectedPackets(t *testing.T, plainSize int) int {
	t.Helper()
	encrypted := plainSize + 16 - plainSize%16
	plan, err := worker.NewPlan(encrypted, worker.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	return plan.TotalPackets
}

func TestSessionRegistersThenLogsIn(t *testing.T) {
	log := testlog.Start(t)
	srv := fakeserver.New(fakeserver.Hooks{}, log)
	ws := newWorkspace(t, "127.0.0.1:9999")

	e, err := runPiped(t, srv, ws, log)
	if err != nil {
		t.Fatalf("first session: %v", err)
	}
	if e.State() != engine.Done {
		t.Fatalf("expected done, got %s", e.State())
	}

	want := []uint16{opcode.REGISTER, opcode.PUBLIC_KEY, opcode.SEND_FILE, opcode.CRC_VALID}
	if got := srv.Requests(); !equalCodes(got, want) {
		t.Fatalf("expected %v, got %v", names(want), names(got))
	}

	uploads := srv.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("expected one upload, got %d", len(uploads))
	}
	up := uploads[0]
	if packets := expectedPackets(t, reportSize); up.Packets != packets || packets != 4 {
		t.Fatalf("expected 4 packets, server saw %d, plan says %d", up.Packets, packets)
	}
	if up.FileName != "report.bin" || up.OriginalSize != reportSize {
		t.Fatalf("unexpected upload metadata: %s %d", up.FileName, up.OriginalSize)
	}
	if !bytes.Equal(up.Data, ws.data) {
		t.Fatalf("server decrypted different content")
	}
	if up.CRC != fileio.ChecksumBytes(ws.data) {
		t.Fatalf("checksum mismatch: %d", up.CRC)
	}
	if up.ClientID != e.ClientID() {
		t.Fatalf("upload under %s, engine is %s", up.ClientID, e.ClientID())
	}

	cred, err := fileio.ReadCredential(ws.credential)
	if err != nil {
		t.Fatalf("credential not saved: %v", err)
	}
	if cred.User != "alice" || cred.ClientID != e.ClientID() {
		t.Fatalf("unexpected credential: %+v", cred)
	}

	// A fresh process with the saved credential skips registration.
	second, err := runPiped(t, srv, ws, log)
	if err != nil {
		t.Fatalf("second session: %v", err)
	}
	if second.ClientID() != cred.ClientID {
		t.Fatalf("second session used %s", second.ClientID())
	}
	want = append(want, opcode.LOGIN, opcode.SEND_FILE, opcode.CRC_VALID)
	if got := srv.Requests(); !equalCodes(got, want) {
		t.Fatalf("expected %v, got %v", names(want), names(got))
	}
	if uploads := srv.Uploads(); len(uploads) != 2 || !bytes.Equal(uploads[1].Data, ws.data) {
		t.Fatalf("second upload missing or corrupt")
	}
}

func TestSessionReregistersWhenServerForgetsUser(t *testing.T) {
	log := testlog.Start(t)
	ws := newWorkspace(t, "127.0.0.1:9999")

	if _, err := runPiped(t, fakeserver.New(fakeserver.Hooks{}, log), ws, log); err != nil {
		t.Fatalf("first session: %v", err)
	}
	stale, err := fileio.ReadCredential(ws.credential)
	if err != nil {
		t.Fatal(err)
	}

	// A new server knows nobody, so the login is refused.
	srv := fakeserver.New(fakeserver.Hooks{}, log)
	e, err := runPiped(t, srv, ws, log)
	if err != nil {
		t.Fatalf("second session: %v", err)
	}
	want := []uint16{opcode.LOGIN, opcode.REGISTER, opcode.PUBLIC_KEY, opcode.SEND_FILE, opcode.CRC_VALID}
	if got := srv.Requests(); !equalCodes(got, want) {
		t.Fatalf("expected %v, got %v", names(want), names(got))
	}
	fresh, err := fileio.ReadCredential(ws.credential)
	if err != nil {
		t.Fatalf("credential not rewritten: %v", err)
	}
	if fresh.ClientID == stale.ClientID || fresh.ClientID != e.ClientID() {
		t.Fatalf("expected a new identity, stale %s fresh %s", stale.ClientID, fresh.ClientID)
	}
}

func TestSessionResendsAfterCorruptChecksum(t *testing.T) {
	log := testlog.Start(t)
	srv := fakeserver.New(fakeserver.Hooks{CorruptCRC: 1}, log)
	ws := newWorkspace(t, "127.0.0.1:9999")

	if _, err := runPiped(t, srv, ws, log); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []uint16{opcode.CRC_INVALID, opcode.CRC_VALID}
	if got := srv.Verdicts(); !equalCodes(got, want) {
		t.Fatalf("expected verdicts %v, got %v", names(want), names(got))
	}
	uploads := srv.Uploads()
	if len(uploads) != 2 {
		t.Fatalf("expected the burst twice, got %d", len(uploads))
	}
	for i, up := range uploads {
		if !bytes.Equal(up.Data, ws.data) {
			t.Fatalf("upload %d differs from the source", i)
		}
	}
}

func TestSessionGivesUpAfterRepeatedCorruption(t *testing.T) {
	log := testlog.Start(t)
	srv := fakeserver.New(fakeserver.Hooks{CorruptCRC: 10}, log)
	ws := newWorkspace(t, "127.0.0.1:9999")

	e, err := runPiped(t, srv, ws, log)
	if !errors.Is(err, engine.ErrServerRejection) {
		t.Fatalf("expected ErrServerRejection, got %v", err)
	}
	if e.State() != engine.Fatal {
		t.Fatalf("expected fatal, got %s", e.State())
	}
	want := []uint16{opcode.CRC_INVALID, opcode.CRC_INVALID, opcode.CRC_FATAL}
	if got := srv.Verdicts(); !equalCodes(got, want) {
		t.Fatalf("expected verdicts %v, got %v", names(want), names(got))
	}
}

func TestSessionRetriesRejectedRequests(t *testing.T) {
	log := testlog.Start(t)
	srv := fakeserver.New(fakeserver.Hooks{FailRegistrations: 1, GenericErrors: 1}, log)
	ws := newWorkspace(t, "127.0.0.1:9999")

	if _, err := runPiped(t, srv, ws, log); err != nil {
		t.Fatalf("run: %v", err)
	}
	// The generic error answers the first register, the failed registration
	// the second. Each rejection is below the limit on its own.
	want := []uint16{opcode.REGISTER, opcode.REGISTER, opcode.REGISTER, opcode.PUBLIC_KEY, opcode.SEND_FILE, opcode.CRC_VALID}
	if got := srv.Requests(); !equalCodes(got, want) {
		t.Fatalf("expected %v, got %v", names(want), names(got))
	}
}

func TestSessionFailsAfterRegistrationLimit(t *testing.T) {
	log := testlog.Start(t)
	srv := fakeserver.New(fakeserver.Hooks{FailRegistrations: 3}, log)
	ws := newWorkspace(t, "127.0.0.1:9999")

	if _, err := runPiped(t, srv, ws, log); !errors.Is(err, engine.ErrServerRejection) {
		t.Fatalf("expected ErrServerRejection, got %v", err)
	}
	if _, err := os.Stat(ws.credential); !os.IsNotExist(err) {
		t.Fatalf("no credential may exist after failed registration: %v", err)
	}
}

func TestSessionOverTCP(t *testing.T) {
	log := testlog.Start(t)
	srv := fakeserver.New(fakeserver.Hooks{LoginCode: opcode.SESSION_KEY}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, err := srv.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback unavailable: %v", err)
	}
	ws := newWorkspace(t, addr.String())
	storage := fileio.NewDiskStorage(ws.registration, ws.credential, log)

	for session := 1; session <= 2; session++ {
		reg, err := storage.LoadRegistration()
		if err != nil {
			t.Fatal(err)
		}
		conn, err := comms.Connect(reg.Endpoint(), 0, 5*time.Second, 0, log)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		e := engine.New(engine.DefaultConfig(), conn, networking.NewCrypto(networking.RSA_KEY_BITS), storage, log)
		if err := e.Start(); err != nil {
			t.Fatalf("session %d start: %v", session, err)
		}
		err = e.Run()
		conn.Close()
		if err != nil {
			t.Fatalf("session %d: %v", session, err)
		}
	}

	uploads := srv.Uploads()
	if len(uploads) != 2 {
		t.Fatalf("expected two uploads, got %d", len(uploads))
	}
	if uploads[0].ClientID != uploads[1].ClientID {
		t.Fatalf("second session should reuse the identity")
	}
}
