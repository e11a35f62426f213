package networking

import (
	"encoding/binary"
	"fmt"

	"go_secure_send/constants"
	"go_secure_send/networking/opcode"
)

// Request is the client to server frame
type Request struct {
	ClientID    ClientID
	Version     uint8
	Code        uint16
	PayloadSize uint32
	Payload     Payload
}

// Response is the server to client frame
type Response struct {
	Version     uint8
	Code        uint16
	PayloadSize uint32
	Payload     Payload
}

// NewRequest builds a request with the current version and a matching payload size
func NewRequest(id ClientID, code uint16, payload Payload) Request {
	return Request{
		ClientID:    id,
		Version:     constants.PROTOCOL_VERSION,
		Code:        code,
		PayloadSize: payload.Size(),
		Payload:     payload,
	}
}

// NewResponse builds a response with the current version and a matching payload size
func NewResponse(code uint16, payload Payload) Response {
	return Response{
		Version:     constants.PROTOCOL_VERSION,
		Code:        code,
		PayloadSize: payload.Size(),
		Payload:     payload,
	}
}

// EncodeRequest serializes header and payload in wire order
func EncodeRequest(req Request) ([]byte, error) {
	if req.Payload == nil {
		return nil, fmt.Errorf("%w: request %s has no payload", ErrEncoding, opcode.Name(req.Code))
	}
	payload, err := EncodePayload(req.Payload, req.PayloadSize)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, constants.REQUEST_HEADER_SIZE, constants.REQUEST_HEADER_SIZE+len(payload))
	copy(buf[0:16], req.ClientID[:])
	buf[16] = req.Version
	binary.LittleEndian.PutUint16(buf[17:19], req.Code)
	binary.LittleEndian.PutUint32(buf[19:23], req.PayloadSize)

	return append(buf, payload...), nil
}

// EncodeResponse serializes a response frame
func EncodeResponse(resp Response) ([]byte, error) {
	if resp.Payload == nil {
		return nil, fmt.Errorf("%w: response %s has no payload", ErrEncoding, opcode.Name(resp.Code))
	}
	payload, err := EncodePayload(resp.Payload, resp.PayloadSize)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, constants.RESPONSE_HEADER_SIZE, constants.RESPONSE_HEADER_SIZE+len(payload))
	buf[0] = resp.Version
	binary.LittleEndian.PutUint16(buf[1:3], resp.Code)
	binary.LittleEndian.PutUint32(buf[3:7], resp.PayloadSize)

	return append(buf, payload...), nil
}

// EncodePayload writes every field at its fixed offset into a zero filled
// buffer of exactly declared bytes.
func EncodePayload(payload Payload, declared uint32) ([]byte, error) {
	if payload.Size() != declared {
		return nil, fmt.Errorf("%w: declared payload size %d, layout needs %d", ErrEncoding, declared, payload.Size())
	}
	buf := make([]byte, declared)

	var err error
	switch p := payload.(type) {
	case NameRequest:
		err = nameRequestLayout.col("name").putString(buf, p.Name)
	case SendPublicKeyRequest:
		err = encodePublicKeyRequest(buf, p)
	case SendFileRequest:
		err = encodeSendFileRequest(buf, p)
	case CRCRequest:
		err = crcRequestLayout.col("file_name").putString(buf, p.FileName)
	case ClientIDResponse:
		err = clientIDResponseLayout.col("client_id").putBytes(buf, p.ClientID[:])
	case SymmetricKeyResponse:
		l := symmetricKeyResponseLayout
		err = l.col("client_id").putBytes(buf, p.ClientID[:])
		copy(buf[l.size():], p.SymmetricKey)
	case FileResponse:
		err = encodeFileResponse(buf, p)
	case ErrorResponse:
	default:
		err = fmt.Errorf("%w: unsupported payload %T", ErrEncoding, payload)
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func encodePublicKeyRequest(buf []byte, p SendPublicKeyRequest) error {
	l := publicKeyRequestLayout
	if err := l.col("name").putString(buf, p.Name); err != nil {
		return err
	}
	return l.col("public_key").putBytes(buf, p.PublicKey)
}

func encodeSendFileRequest(buf []byte, p SendFileRequest) error {
	if int(p.ContentSize) != len(p.Content) {
		return fmt.Errorf("%w: content_size %d but %d content bytes", ErrEncoding, p.ContentSize, len(p.Content))
	}
	l := sendFileRequestLayout
	l.col("content_size").putUint32(buf, p.ContentSize)
	l.col("original_file_size").putUint32(buf, p.OriginalFileSize)
	l.col("packet_number").putUint16(buf, p.PacketNumber)
	l.col("total_packets").putUint16(buf, p.TotalPackets)
	if err := l.col("file_name").putString(buf, p.FileName); err != nil {
		return err
	}
	copy(buf[l.size():], p.Content)
	return nil
}

func encodeFileResponse(buf []byte, p FileResponse) error {
	l := fileResponseLayout
	if err := l.col("client_id").putBytes(buf, p.ClientID[:]); err != nil {
		return err
	}
	l.col("content_size").putUint32(buf, p.ContentSize)
	if err := l.col("file_name").putString(buf, p.FileName); err != nil {
		return err
	}
	l.col("crc").putUint32(buf, p.CRC)
	return nil
}

// DecodeResponse parses one whole response frame
func DecodeResponse(frame []byte) (Response, error) {
	if len(frame) < constants.RESPONSE_HEADER_SIZE {
		return Response{}, fmt.Errorf("%w: response header needs %d bytes, got %d",
			ErrDecoding, constants.RESPONSE_HEADER_SIZE, len(frame))
	}
	resp := Response{
		Version:     frame[0],
		Code:        binary.LittleEndian.Uint16(frame[1:3]),
		PayloadSize: binary.LittleEndian.Uint32(frame[3:7]),
	}
	body := frame[constants.RESPONSE_HEADER_SIZE:]
	if uint64(resp.PayloadSize) != uint64(len(body)) {
		return Response{}, fmt.Errorf("%w: %s declares %d payload bytes, frame has %d",
			ErrDecoding, opcode.Name(resp.Code), resp.PayloadSize, len(body))
	}

	payload, err := DecodePayload(body, resp.Code)
	if err != nil {
		return Response{}, err
	}
	resp.Payload = payload
	return resp, nil
}

// DecodePayload maps a response code to its variant and reads it from buf
func DecodePayload(buf []byte, code uint16) (Payload, error) {
	switch code {
	case opcode.REGISTRATION_OK, opcode.ACK, opcode.LOGIN_FAILED:
		l := clientIDResponseLayout
		if err := expectSize(buf, l.size(), code); err != nil {
			return nil, err
		}
		var p ClientIDResponse
		copy(p.ClientID[:], l.col("client_id").bytes(buf))
		return p, nil
	case opcode.SESSION_KEY, opcode.LOGIN_OK:
		l := symmetricKeyResponseLayout
		if len(buf) < l.size() {
			return nil, fmt.Errorf("%w: %s needs at least %d bytes, got %d",
				ErrDecoding, opcode.Name(code), l.size(), len(buf))
		}
		var p SymmetricKeyResponse
		copy(p.ClientID[:], l.col("client_id").bytes(buf))
		p.SymmetricKey = append([]byte(nil), buf[l.size():]...)
		return p, nil
	case opcode.FILE_VALID:
		l := fileResponseLayout
		if err := expectSize(buf, l.size(), code); err != nil {
			return nil, err
		}
		var p FileResponse
		copy(p.ClientID[:], l.col("client_id").bytes(buf))
		p.ContentSize = l.col("content_size").uint32(buf)
		p.FileName = l.col("file_name").string(buf)
		p.CRC = l.col("crc").uint32(buf)
		return p, nil
	case opcode.REGISTRATION_FAILED, opcode.GENERIC_ERROR:
		if err := expectSize(buf, errorResponseLayout.size(), code); err != nil {
			return nil, err
		}
		return ErrorResponse{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported response code %d", ErrDecoding, code)
	}
}

// DecodeRequest parses one whole request frame. Only the receiving side of
// the protocol needs it.
func DecodeRequest(frame []byte) (Request, error) {
	if len(frame) < constants.REQUEST_HEADER_SIZE {
		return Request{}, fmt.Errorf("%w: request header needs %d bytes, got %d",
			ErrDecoding, constants.REQUEST_HEADER_SIZE, len(frame))
	}
	var req Request
	copy(req.ClientID[:], frame[0:16])
	req.Version = frame[16]
	req.Code = binary.LittleEndian.Uint16(frame[17:19])
	req.PayloadSize = binary.LittleEndian.Uint32(frame[19:23])

	body := frame[constants.REQUEST_HEADER_SIZE:]
	if uint64(req.PayloadSize) != uint64(len(body)) {
		return Request{}, fmt.Errorf("%w: %s declares %d payload bytes, frame has %d",
			ErrDecoding, opcode.Name(req.Code), req.PayloadSize, len(body))
	}

	switch req.Code {
	case opcode.REGISTER, opcode.LOGIN:
		if err := expectSize(body, nameRequestLayout.size(), req.Code); err != nil {
			return Request{}, err
		}
		req.Payload = NameRequest{Name: nameRequestLayout.col("name").string(body)}
	case opcode.PUBLIC_KEY:
		l := publicKeyRequestLayout
		if err := expectSize(body, l.size(), req.Code); err != nil {
			return Request{}, err
		}
		req.Payload = SendPublicKeyRequest{
			Name:      l.col("name").string(body),
			PublicKey: l.col("public_key").bytes(body),
		}
	case opcode.SEND_FILE:
		p, err := DecodeFilePacket(body)
		if err != nil {
			return Request{}, err
		}
		req.Payload = p
	case opcode.CRC_VALID, opcode.CRC_INVALID, opcode.CRC_FATAL:
		if err := expectSize(body, crcRequestLayout.size(), req.Code); err != nil {
			return Request{}, err
		}
		req.Payload = CRCRequest{FileName: crcRequestLayout.col("file_name").string(body)}
	default:
		return Request{}, fmt.Errorf("%w: unsupported request code %d", ErrDecoding, req.Code)
	}
	return req, nil
}

// DecodeFilePacket parses a bare SendFileRequest body, as sent for every
// packet after the first of a burst.
func DecodeFilePacket(buf []byte) (SendFileRequest, error) {
	l := sendFileRequestLayout
	if len(buf) < l.size() {
		return SendFileRequest{}, fmt.Errorf("%w: file packet needs at least %d bytes, got %d",
			ErrDecoding, l.size(), len(buf))
	}
	p := SendFileRequest{
		ContentSize:      l.col("content_size").uint32(buf),
		OriginalFileSize: l.col("original_file_size").uint32(buf),
		PacketNumber:     l.col("packet_number").uint16(buf),
		TotalPackets:     l.col("total_packets").uint16(buf),
		FileName:         l.col("file_name").string(buf),
	}
	if uint64(p.ContentSize) != uint64(len(buf)-l.size()) {
		return SendFileRequest{}, fmt.Errorf("%w: content_size %d but %d content bytes",
			ErrDecoding, p.ContentSize, len(buf)-l.size())
	}
	p.Content = append([]byte(nil), buf[l.size():]...)
	return p, nil
}

// FilePacketContentSize reads content_size from the start of a file packet
// header so a reader knows how many bytes follow.
func FilePacketContentSize(header []byte) (uint32, error) {
	if len(header) < constants.FILE_HEADER_SIZE {
		return 0, fmt.Errorf("%w: file packet header needs %d bytes, got %d",
			ErrDecoding, constants.FILE_HEADER_SIZE, len(header))
	}
	return sendFileRequestLayout.col("content_size").uint32(header), nil
}

func expectSize(buf []byte, want int, code uint16) error {
	if len(buf) != want {
		return fmt.Errorf("%w: %s payload must be %d bytes, got %d", ErrDecoding, opcode.Name(code), want, len(buf))
	}
	return nil
}
