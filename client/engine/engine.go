package engine

import (
	"errors"
	"fmt"
	"path/filepath"

	"go_secure_send/client/worker"
	"go_secure_send/constants"
	"go_secure_send/fileio"
	"go_secure_send/networking"
	"go_secure_send/networking/opcode"
	"go_secure_send/observability"

	"github.com/rs/zerolog"
)

var (
	ErrProtocol        = errors.New("engine: unexpected response")
	ErrServerRejection = errors.New("engine: server rejected request")
	ErrNotStarted      = errors.New("engine: session not started")
)

// Config holds the session limits
type Config struct {
	MaxErrors int
	Limits    worker.Limits
}

// DefaultConfig returns the limits of the reference protocol
func DefaultConfig() Config {
	return Config{
		MaxErrors: constants.MAX_ERRORS,
		Limits:    worker.DefaultLimits(),
	}
}

// Engine drives one client session from registration or login to the
// server's final acknowledgement. It is not safe for concurrent use.
type Engine struct {
	cfg       Config
	transport Transport
	crypto    Crypto
	storage   Storage
	log       zerolog.Logger

	state   State
	started bool
	pending networking.Request // last request sent, packet 1 while a burst is pending
	burst   bool               // pending is a whole file burst
	errors  int

	id       networking.ClientID
	user     string // name from the registration source
	filePath string
	fileName string
	checksum uint32
}

// New returns an idle engine
func New(cfg Config, t Transport, c Crypto, s Storage, log zerolog.Logger) *Engine {
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = constants.MAX_ERRORS
	}
	if cfg.Limits == (worker.Limits{}) {
		cfg.Limits = worker.DefaultLimits()
	}
	return &Engine{
		cfg:       cfg,
		transport: t,
		crypto:    c,
		storage:   s,
		log:       log.With().Str("component", "engine").Logger(),
		state:     Idle,
	}
}

// State returns the current session state
func (e *Engine) State() State {
	return e.state
}

// ErrorCount returns the rejections counted since the last success
func (e *Engine) ErrorCount() int {
	return e.errors
}

// ClientID returns the identity in use, zero before registration
func (e *Engine) ClientID() networking.ClientID {
	return e.id
}

// Pending returns the last request sent or prepared
func (e *Engine) Pending() networking.Request {
	return e.pending
}

// Start loads the registration source and the credential and prepares the
// first request: Login for a saved credential, Register otherwise.
func (e *Engine) Start() error {
	if e.started {
		return fmt.Errorf("%w: session already started", ErrProtocol)
	}
	reg, err := e.storage.LoadRegistration()
	if err != nil {
		return e.fail(err)
	}
	e.user = reg.User
	e.filePath = reg.FilePath
	e.fileName = filepath.Base(reg.FilePath)
	if len(e.fileName) >= constants.FILE_NAME_SIZE {
		return e.fail(fmt.Errorf("%w: file name %q too long", fileio.ErrConfig, e.fileName))
	}

	e.checksum, err = e.storage.Checksum(e.filePath)
	if err != nil {
		return e.fail(err)
	}

	cred, err := e.storage.LoadCredential()
	switch {
	case errors.Is(err, fileio.ErrCredentialNotFound):
		e.log.Info().Str("user", e.user).Msg("no saved credential, registering")
		e.pending = e.registerRequest()
	case err != nil:
		return e.fail(err)
	default:
		if err := e.crypto.ImportCredential(cred.Key); err != nil {
			return e.fail(err)
		}
		e.id = cred.ClientID
		e.log.Info().Str("user", cred.User).Str("client_id", e.id.String()).Msg("saved credential found, logging in")
		e.pending = networking.NewRequest(e.id, opcode.LOGIN, networking.NameRequest{Name: cred.User})
	}

	e.started = true
	e.log.Debug().Str("file", e.filePath).Uint32("crc", e.checksum).Msg("session prepared")
	return nil
}

// Run sends the prepared request and reacts to every response until the
// session ends. It returns nil only when the server acknowledged the file.
func (e *Engine) Run() error {
	if !e.started {
		return ErrNotStarted
	}
	if e.state != Idle {
		return fmt.Errorf("%w: session already ran", ErrProtocol)
	}
	if err := e.send(e.pending); err != nil {
		return e.fail(err)
	}

	for !e.state.Terminal() {
		frame, err := e.transport.ReceiveFrame()
		if err != nil {
			return e.fail(err)
		}
		resp, err := networking.DecodeResponse(frame)
		if err != nil {
			return e.fail(err)
		}
		observability.RecordResponse(resp.Code)
		e.log.Debug().Str("op", opcode.Name(resp.Code)).Uint32("size", resp.PayloadSize).
			Stringer("state", e.state).Msg("response received")

		if err := e.handle(resp); err != nil {
			return e.fail(err)
		}
	}

	observability.RecordOutcome(e.state.String())
	e.log.Info().Str("file", e.fileName).Msg("file transferred and acknowledged")
	return nil
}

func (e *Engine) handle(resp networking.Response) error {
	switch p := resp.Payload.(type) {
	case networking.ClientIDResponse:
		switch resp.Code {
		case opcode.REGISTRATION_OK:
			if err := e.expect(resp.Code, opcode.REGISTER); err != nil {
				return err
			}
			return e.registered(p.ClientID)
		case opcode.LOGIN_FAILED:
			if err := e.expect(resp.Code, opcode.LOGIN); err != nil {
				return err
			}
			return e.loginFailed()
		case opcode.ACK:
			if err := e.expect(resp.Code, opcode.CRC_VALID); err != nil {
				return err
			}
			e.errors = 0
			e.state = Done
			return nil
		}
	case networking.SymmetricKeyResponse:
		switch resp.Code {
		case opcode.SESSION_KEY:
			if err := e.expect(resp.Code, opcode.PUBLIC_KEY, opcode.LOGIN); err != nil {
				return err
			}
		case opcode.LOGIN_OK:
			if err := e.expect(resp.Code, opcode.LOGIN); err != nil {
				return err
			}
		}
		return e.sessionKey(p)
	case networking.FileResponse:
		if err := e.expect(resp.Code, opcode.SEND_FILE); err != nil {
			return err
		}
		return e.fileValidated(p)
	case networking.ErrorResponse:
		if resp.Code == opcode.REGISTRATION_FAILED {
			if err := e.expect(resp.Code, opcode.REGISTER); err != nil {
				return err
			}
			return e.retry("registration_failed")
		}
		return e.retry("generic_error")
	}
	return fmt.Errorf("%w: %s in state %s", ErrProtocol, opcode.Name(resp.Code), e.state)
}

// expect checks that the pending request is one of the kinds that may
// receive a response with the given code.
func (e *Engine) expect(code uint16, kinds ...uint16) error {
	for _, kind := range kinds {
		if e.pending.Code == kind {
			return nil
		}
	}
	return fmt.Errorf("%w: %s after %s request", ErrProtocol, opcode.Name(code), opcode.Name(e.pending.Code))
}

func (e *Engine) registered(id networking.ClientID) error {
	e.errors = 0
	e.id = id

	text, err := e.crypto.CredentialText()
	if err != nil {
		return err
	}
	cred := fileio.Credential{User: e.user, ClientID: id, Key: text}
	if err := e.storage.SaveCredential(cred); err != nil {
		return err
	}
	e.log.Info().Str("client_id", id.String()).Msg("registered")

	pub, err := e.crypto.PublicKeyBytes()
	if err != nil {
		return err
	}
	return e.send(networking.NewRequest(id, opcode.PUBLIC_KEY,
		networking.SendPublicKeyRequest{Name: e.user, PublicKey: pub}))
}

func (e *Engine) loginFailed() error {
	e.log.Warn().Str("client_id", e.id.String()).Msg("login rejected, registering again")
	if err := e.storage.DeleteCredential(); err != nil {
		return err
	}
	e.id = networking.ClientID{}
	return e.send(e.registerRequest())
}

func (e *Engine) sessionKey(p networking.SymmetricKeyResponse) error {
	e.errors = 0
	if !e.id.IsZero() && p.ClientID != e.id {
		e.log.Warn().Str("client_id", e.id.String()).Str("echoed", p.ClientID.String()).
			Msg("session key carries a different identity")
	}
	if _, err := e.crypto.DecryptSessionKey(p.SymmetricKey); err != nil {
		return err
	}
	e.log.Debug().Int("wrapped_bytes", len(p.SymmetricKey)).Msg("session key installed")
	return e.sendBurst()
}

func (e *Engine) fileValidated(p networking.FileResponse) error {
	if p.CRC == e.checksum {
		e.errors = 0
		e.log.Info().Str("file", p.FileName).Uint32("crc", p.CRC).Msg("checksum confirmed")
		return e.send(e.crcRequest(opcode.CRC_VALID))
	}

	e.errors++
	observability.RecordRejection("crc_mismatch")
	e.log.Warn().Uint32("local", e.checksum).Uint32("remote", p.CRC).
		Int("errors", e.errors).Int("max", e.cfg.MaxErrors).Msg("checksum mismatch")

	if e.errors >= e.cfg.MaxErrors {
		// The server acknowledges the fatal notice, but nothing is left to do
		// with its reply.
		if err := e.send(e.crcRequest(opcode.CRC_FATAL)); err != nil {
			return err
		}
		return fmt.Errorf("%w: checksum mismatch %d times", ErrServerRejection, e.errors)
	}

	// The server expects the burst right after the invalid notice.
	if err := e.send(e.crcRequest(opcode.CRC_INVALID)); err != nil {
		return err
	}
	return e.sendBurst()
}

// retry counts a rejection and resends the pending request, or the whole
// burst when the rejection arrived while a burst was pending.
func (e *Engine) retry(reason string) error {
	e.errors++
	observability.RecordRejection(reason)
	if e.errors >= e.cfg.MaxErrors {
		return fmt.Errorf("%w: %s %d times", ErrServerRejection, reason, e.errors)
	}
	e.log.Warn().Str("reason", reason).Int("errors", e.errors).Int("max", e.cfg.MaxErrors).
		Str("resend", opcode.Name(e.pending.Code)).Msg("server rejected request, retrying")

	if e.burst {
		return e.sendBurst()
	}
	return e.send(e.pending)
}

// send writes one request and moves to the state that waits for its answer
func (e *Engine) send(req networking.Request) error {
	frame, err := networking.EncodeRequest(req)
	if err != nil {
		return err
	}
	if err := e.transport.SendFrame(frame); err != nil {
		return err
	}
	observability.RecordRequest(req.Code)
	e.log.Debug().Str("op", opcode.Name(req.Code)).Uint32("size", req.PayloadSize).Msg("request sent")

	e.pending = req
	e.burst = false
	switch req.Code {
	case opcode.REGISTER, opcode.LOGIN:
		e.state = AwaitingIdentityResponse
	case opcode.PUBLIC_KEY:
		e.state = AwaitingKeyResponse
	default:
		e.state = AwaitingFileValidation
	}
	return nil
}

// sendBurst reads, encrypts and sends the whole file. Every burst starts from
// a fresh read, and only the ciphertext outlives encryption.
func (e *Engine) sendBurst() error {
	plain, err := e.storage.ReadFileBytes(e.filePath)
	if err != nil {
		return err
	}
	originalSize := len(plain)
	if originalSize == 0 {
		return fmt.Errorf("%w: %s is empty", fileio.ErrSourceFile, e.filePath)
	}
	sealed, err := e.crypto.EncryptFile(plain)
	if err != nil {
		return err
	}

	burst, err := worker.NewBurst(e.id, e.fileName, originalSize, sealed, e.cfg.Limits)
	if err != nil {
		return err
	}
	e.state = SendingFile
	e.log.Info().Str("file", e.fileName).Int("size", originalSize).Int("encrypted", len(sealed)).
		Int("packets", burst.Plan.TotalPackets).Msg("sending file")

	first, stats, err := burst.Send(e.transport)
	if err != nil {
		return err
	}
	observability.RecordRequest(opcode.SEND_FILE)
	observability.RecordBurst(stats.Packets, stats.Bytes)

	e.pending = first
	e.burst = true
	e.state = AwaitingFileValidation
	return nil
}

func (e *Engine) registerRequest() networking.Request {
	return networking.NewRequest(networking.ClientID{}, opcode.REGISTER, networking.NameRequest{Name: e.user})
}

func (e *Engine) crcRequest(code uint16) networking.Request {
	return networking.NewRequest(e.id, code, networking.CRCRequest{FileName: e.fileName})
}

func (e *Engine) fail(err error) error {
	e.state = Fatal
	observability.RecordOutcome(Fatal.String())
	e.log.Error().Err(err).Str("pending", opcode.Name(e.pending.Code)).Int("errors", e.errors).Msg("session failed")
	return err
}
