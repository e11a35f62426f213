// Package fakeserver is an in-process upload server speaking the client wire
// format. Hooks force the failure paths a real server produces.
package fakeserver

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go_secure_send/constants"
	"go_secure_send/fileio"
	"go_secure_send/networking"
	"go_secure_send/networking/opcode"

	"github.com/rs/zerolog"
)

// Hooks select failures. Counters are consumed as they fire.
type Hooks struct {
	FailRegistrations int    // answer Register with RegistrationFailed
	GenericErrors     int    // answer the next requests with GenericError
	CorruptCRC        int    // report a wrong CRC for the next bursts
	LoginCode         uint16 // SessionKey or LoginOK, LoginOK when zero
}

// Upload is one file the server reassembled and decrypted
type Upload struct {
	ClientID     networking.ClientID
	FileName     string
	OriginalSize uint32
	Packets      int
	Data         []byte
	CRC          uint32
}

type user struct {
	id        networking.ClientID
	publicKey []byte
}

// Server handles one connection at a time, like the production server
type Server struct {
	mu       sync.Mutex
	hooks    Hooks
	log      zerolog.Logger
	users    map[string]user
	requests []uint16
	uploads  []Upload
	verdicts []uint16

	aesKey []byte
}

// New returns a server with no registered users
func New(hooks Hooks, log zerolog.Logger) *Server {
	if hooks.LoginCode == 0 {
		hooks.LoginCode = opcode.LOGIN_OK
	}
	return &Server{
		hooks: hooks,
		log:   log.With().Str("component", "fakeserver").Logger(),
		users: make(map[string]user),
	}
}

// Requests returns the op codes received so far, one entry per burst
func (s *Server) Requests() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.requests...)
}

// Uploads returns every reassembled burst
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Verdicts returns the CRC requests received, in order
func (s *Server) Verdicts() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.verdicts...)
}

// Listen accepts connections on addr until ctx is done or the listener fails
func (s *Server) Listen(ctx context.Context, addr string) (net.Addr, error) {
	lc := new(net.ListenConfig)
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			if err := s.Serve(conn); err != nil {
				s.log.Warn().Err(err).Msg("session ended with error")
			}
		}
	}()
	return l.Addr(), nil
}

// Serve handles a whole session and closes conn
func (s *Server) Serve(conn net.Conn) error {
	defer conn.Close()
	s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("new connection")

	for {
		req, err := s.readRequest(conn)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		done, err := s.dispatch(conn, req)
		if err != nil || done {
			return err
		}
	}
}

// readRequest reads one request. A SendFile request swallows the rest of its
// burst and comes back with the reassembled ciphertext as content.
func (s *Server) readRequest(conn net.Conn) (networking.Request, error) {
	header := make([]byte, constants.REQUEST_HEADER_SIZE)
	if _, err := io.ReadFull(conn, header); err != nil {
		return networking.Request{}, err
	}
	size := binary.LittleEndian.Uint32(header[19:23])
	frame := make([]byte, len(header)+int(size))
	copy(frame, header)
	if _, err := io.ReadFull(conn, frame[len(header):]); err != nil {
		return networking.Request{}, fmt.Errorf("short payload: %w", err)
	}
	req, err := networking.DecodeRequest(frame)
	if err != nil {
		return networking.Request{}, err
	}
	if req.Code != opcode.SEND_FILE {
		return req, nil
	}

	first := req.Payload.(networking.SendFileRequest)
	if first.PacketNumber != 1 {
		return networking.Request{}, fmt.Errorf("burst starts at packet %d", first.PacketNumber)
	}
	content := first.Content
	for n := uint16(2); n <= first.TotalPackets; n++ {
		pkt, err := readFilePacket(conn)
		if err != nil {
			return networking.Request{}, err
		}
		if pkt.PacketNumber != n || pkt.TotalPackets != first.TotalPackets {
			return networking.Request{}, fmt.Errorf("packet %d/%d out of order, expected %d/%d",
				pkt.PacketNumber, pkt.TotalPackets, n, first.TotalPackets)
		}
		content = append(content, pkt.Content...)
	}
	first.Content = content
	first.ContentSize = uint32(len(content))
	req.Payload = first
	return req, nil
}

func readFilePacket(conn net.Conn) (networking.SendFileRequest, error) {
	header := make([]byte, constants.FILE_HEADER_SIZE)
	if _, err := io.ReadFull(conn, header); err != nil {
		return networking.SendFileRequest{}, err
	}
	size, err := networking.FilePacketContentSize(header)
	if err != nil {
		return networking.SendFileRequest{}, err
	}
	buf := make([]byte, len(header)+int(size))
	copy(buf, header)
	if _, err := io.ReadFull(conn, buf[len(header):]); err != nil {
		return networking.SendFileRequest{}, err
	}
	return networking.DecodeFilePacket(buf)
}

// dispatch answers one request and reports whether the session is over
func (s *Server) dispatch(conn net.Conn, req networking.Request) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req.Code)
	s.log.Debug().Str("op", opcode.Name(req.Code)).Uint32("size", req.PayloadSize).Msg("request")

	if s.hooks.GenericErrors > 0 {
		s.hooks.GenericErrors--
		return false, reply(conn, opcode.GENERIC_ERROR, networking.ErrorResponse{})
	}

	switch p := req.Payload.(type) {
	case networking.NameRequest:
		if req.Code == opcode.REGISTER {
			return false, s.register(conn, p)
		}
		return false, s.login(conn, req.ClientID, p)
	case networking.SendPublicKeyRequest:
		return false, s.publicKey(conn, req.ClientID, p)
	case networking.SendFileRequest:
		return false, s.receiveFile(conn, req.ClientID, p)
	case networking.CRCRequest:
		s.verdicts = append(s.verdicts, req.Code)
		switch req.Code {
		case opcode.CRC_INVALID:
			// The burst follows without a reply.
			return false, nil
		default:
			return true, reply(conn, opcode.ACK, networking.ClientIDResponse{ClientID: req.ClientID})
		}
	}
	return false, reply(conn, opcode.GENERIC_ERROR, networking.ErrorResponse{})
}

func (s *Server) register(conn net.Conn, p networking.NameRequest) error {
	if s.hooks.FailRegistrations > 0 {
		s.hooks.FailRegistrations--
		return reply(conn, opcode.REGISTRATION_FAILED, networking.ErrorResponse{})
	}
	if _, taken := s.users[p.Name]; taken {
		return reply(conn, opcode.REGISTRATION_FAILED, networking.ErrorResponse{})
	}
	var id networking.ClientID
	if _, err := rand.Read(id[:]); err != nil {
		return err
	}
	s.users[p.Name] = user{id: id}
	s.log.Info().Str("user", p.Name).Str("client_id", id.String()).Msg("registered")
	return reply(conn, opcode.REGISTRATION_OK, networking.ClientIDResponse{ClientID: id})
}

func (s *Server) publicKey(conn net.Conn, id networking.ClientID, p networking.SendPublicKeyRequest) error {
	u, ok := s.users[p.Name]
	if !ok || u.id != id {
		return reply(conn, opcode.GENERIC_ERROR, networking.ErrorResponse{})
	}
	u.publicKey = p.PublicKey
	s.users[p.Name] = u
	return s.sendSessionKey(conn, opcode.SESSION_KEY, u)
}

func (s *Server) login(conn net.Conn, id networking.ClientID, p networking.NameRequest) error {
	u, ok := s.users[p.Name]
	if !ok || u.id != id || u.publicKey == nil {
		return reply(conn, opcode.LOGIN_FAILED, networking.ClientIDResponse{ClientID: id})
	}
	return s.sendSessionKey(conn, s.hooks.LoginCode, u)
}

func (s *Server) sendSessionKey(conn net.Conn, code uint16, u user) error {
	s.aesKey = make([]byte, networking.AES_KEY_SIZE)
	if _, err := rand.Read(s.aesKey); err != nil {
		return err
	}
	sealed, err := networking.WrapSessionKey(u.publicKey, s.aesKey)
	if err != nil {
		return err
	}
	return reply(conn, code, networking.SymmetricKeyResponse{ClientID: u.id, SymmetricKey: sealed})
}

func (s *Server) receiveFile(conn net.Conn, id networking.ClientID, p networking.SendFileRequest) error {
	if s.aesKey == nil {
		return reply(conn, opcode.GENERIC_ERROR, networking.ErrorResponse{})
	}
	plain, err := networking.DecryptCBC(s.aesKey, p.Content)
	if err != nil {
		return err
	}
	if uint32(len(plain)) != p.OriginalFileSize {
		s.log.Warn().Int("got", len(plain)).Uint32("declared", p.OriginalFileSize).Msg("size mismatch")
	}

	crc := fileio.ChecksumBytes(plain)
	s.uploads = append(s.uploads, Upload{
		ClientID:     id,
		FileName:     p.FileName,
		OriginalSize: p.OriginalFileSize,
		Packets:      int(p.TotalPackets),
		Data:         plain,
		CRC:          crc,
	})
	if s.hooks.CorruptCRC > 0 {
		s.hooks.CorruptCRC--
		crc = ^crc
	}
	return reply(conn, opcode.FILE_VALID, networking.FileResponse{
		ClientID:    id,
		ContentSize: uint32(len(p.Content)),
		FileName:    p.FileName,
		CRC:         crc,
	})
}

func reply(conn net.Conn, code uint16, payload networking.Payload) error {
	out, err := networking.EncodeResponse(networking.NewResponse(code, payload))
	if err != nil {
		return err
	}
	_, err = conn.Write(out)
	return err
}
