package comms

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"go_secure_send/testutil/testlog"
)

func responseFrame(code uint16, payload []byte) []byte {
	frame := make([]byte, 7, 7+len(payload))
	frame[0] = 3
	binary.LittleEndian.PutUint16(frame[1:3], code)
	binary.LittleEndian.PutUint32(frame[3:7], uint32(len(payload)))
	return append(frame, payload...)
}

func TestReceiveFrameReadsDeclaredPayload(t *testing.T) {
	log := testlog.Start(t)
	local, remote := net.Pipe()
	client := NewClient(local, 1024, log)
	defer client.Close()

	first := responseFrame(1600, bytes.Repeat([]byte{1}, 16))
	second := responseFrame(1607, nil)
	go func() {
		// Both frames in one write: the reader must split them by header.
		remote.Write(append(append([]byte(nil), first...), second...))
	}()

	got, err := client.ReceiveFrame()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !bytes.Equal(got, first) {
		t.Fatalf("unexpected first frame %x", got)
	}
	got, err = client.ReceiveFrame()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Fatalf("unexpected second frame %x", got)
	}
}

func TestReceiveFrameRejectsOversizedDeclaration(t *testing.T) {
	log := testlog.Start(t)
	local, remote := net.Pipe()
	client := NewClient(local, 64, log)
	defer client.Close()

	go remote.Write(responseFrame(1602, make([]byte, 58)))

	_, err := client.ReceiveFrame()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReceiveFrameTransportErrors(t *testing.T) {
	log := testlog.Start(t)
	local, remote := net.Pipe()
	client := NewClient(local, 1024, log)
	defer client.Close()

	go func() {
		// Header promises 16 bytes, only 4 arrive.
		frame := responseFrame(1600, bytes.Repeat([]byte{1}, 16))
		remote.Write(frame[:11])
		remote.Close()
	}()
	if _, err := client.ReceiveFrame(); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestSendFrame(t *testing.T) {
	log := testlog.Start(t)
	local, remote := net.Pipe()
	client := NewClient(local, 32, log)
	defer client.Close()

	if err := client.SendFrame(make([]byte, 33)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 5)
		io.ReadFull(remote, buf)
		got <- buf
	}()
	if err := client.SendFrame([]byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if b := <-got; string(b) != "hello" {
		t.Fatalf("unexpected bytes %q", b)
	}

	remote.Close()
	if err := client.SendFrame([]byte("x")); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport after close, got %v", err)
	}
}

func TestConnectLoopback(t *testing.T) {
	log := testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := new(net.ListenConfig).Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write(responseFrame(1604, make([]byte, 16)))
	}()

	client, err := Connect(l.Addr().String(), 46, time.Second, 0, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	frame, err := client.ReceiveFrame()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(frame) != 23 {
		t.Fatalf("expected 23 byte ack frame, got %d", len(frame))
	}
}

func TestConnectFailure(t *testing.T) {
	log := testlog.Start(t)
	if _, err := Connect("not a host:port", 0, time.Second, 0, log); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}
