package networking

import "go_secure_send/constants"

// Payload is one of the eight closed message bodies. The unexported method
// keeps the set sealed to this package.
type Payload interface {
	// Size is the exact serialized length of the payload.
	Size() uint32
	isPayload()
}

// NameRequest is the payload of register and login requests
type NameRequest struct {
	Name string
}

// SendPublicKeyRequest carries the client public key after registration
type SendPublicKeyRequest struct {
	Name      string
	PublicKey []byte
}

// SendFileRequest is one packet of an encrypted file burst
type SendFileRequest struct {
	ContentSize      uint32 // Bytes of Content in this packet
	OriginalFileSize uint32 // Plaintext size of the whole file
	PacketNumber     uint16 // 1-based
	TotalPackets     uint16
	FileName         string
	Content          []byte
}

// CRCRequest reports the checksum verdict for a file
type CRCRequest struct {
	FileName string
}

// ClientIDResponse carries the identity issued or echoed by the server
type ClientIDResponse struct {
	ClientID ClientID
}

// SymmetricKeyResponse carries the session key wrapped with the client public key.
// The key length is whatever remains of the frame after the identity.
type SymmetricKeyResponse struct {
	ClientID     ClientID
	SymmetricKey []byte
}

// FileResponse reports what the server received and its checksum
type FileResponse struct {
	ClientID    ClientID
	ContentSize uint32
	FileName    string
	CRC         uint32
}

// ErrorResponse has no body
type ErrorResponse struct{}

var (
	nameRequestLayout = newLayout(
		field{"name", constants.NAME_SIZE},
	)
	publicKeyRequestLayout = newLayout(
		field{"name", constants.NAME_SIZE},
		field{"public_key", constants.PUBLIC_KEY_SIZE},
	)
	// Content follows the header at offset FILE_HEADER_SIZE.
	sendFileRequestLayout = newLayout(
		field{"content_size", constants.CONTENT_SIZE_SIZE},
		field{"original_file_size", constants.ORIGINAL_FILE_SIZE_SIZE},
		field{"packet_number", constants.PACKET_NUMBER_SIZE},
		field{"total_packets", constants.TOTAL_PACKETS_SIZE},
		field{"file_name", constants.FILE_NAME_SIZE},
	)
	crcRequestLayout = newLayout(
		field{"file_name", constants.FILE_NAME_SIZE},
	)
	clientIDResponseLayout = newLayout(
		field{"client_id", constants.CLIENT_ID_SIZE},
	)
	// Key follows the identity and runs to the end of the frame.
	symmetricKeyResponseLayout = newLayout(
		field{"client_id", constants.CLIENT_ID_SIZE},
	)
	fileResponseLayout = newLayout(
		field{"client_id", constants.CLIENT_ID_SIZE},
		field{"content_size", constants.CONTENT_SIZE_SIZE},
		field{"file_name", constants.FILE_NAME_SIZE},
		field{"crc", constants.CRC_SIZE},
	)
	errorResponseLayout = newLayout()
)

func (p NameRequest) Size() uint32          { return uint32(nameRequestLayout.size()) }
func (p SendPublicKeyRequest) Size() uint32 { return uint32(publicKeyRequestLayout.size()) }
func (p SendFileRequest) Size() uint32 {
	return uint32(sendFileRequestLayout.size()) + p.ContentSize
}
func (p CRCRequest) Size() uint32       { return uint32(crcRequestLayout.size()) }
func (p ClientIDResponse) Size() uint32 { return uint32(clientIDResponseLayout.size()) }
func (p SymmetricKeyResponse) Size() uint32 {
	return uint32(symmetricKeyResponseLayout.size() + len(p.SymmetricKey))
}
func (p FileResponse) Size() uint32  { return uint32(fileResponseLayout.size()) }
func (p ErrorResponse) Size() uint32 { return uint32(errorResponseLayout.size()) }

func (NameRequest) isPayload()          {}
func (SendPublicKeyRequest) isPayload() {}
func (SendFileRequest) isPayload()      {}
func (CRCRequest) isPayload()           {}
func (ClientIDResponse) isPayload()     {}
func (SymmetricKeyResponse) isPayload() {}
func (FileResponse) isPayload()         {}
func (ErrorResponse) isPayload()        {}

// NewSendFileRequest builds a packet whose ContentSize matches content
func NewSendFileRequest(originalSize uint32, packet, total uint16, fileName string, content []byte) SendFileRequest {
	return SendFileRequest{
		ContentSize:      uint32(len(content)),
		OriginalFileSize: originalSize,
		PacketNumber:     packet,
		TotalPackets:     total,
		FileName:         fileName,
		Content:          content,
	}
}
