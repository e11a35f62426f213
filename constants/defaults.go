package constants

const (
	Title = "go_secure_send - registered, encrypted file upload client"

	PROTOCOL_VERSION = 3     // Client version byte sent in every request header
	MAX_FRAME_SIZE   = 32768 // Largest frame either side sends or reads at once
	MAX_ERRORS       = 3     // Server rejections tolerated before the session fails
	DEFAULT_DSCP     = 0x00  // QoS marking for the upload socket

	REGISTRATION_FILE = "transfer.info" // address:port, user name, file to send
	CREDENTIAL_FILE   = "me.info"       // user name, identity, private key
)

// Wire field widths in bytes.
const (
	CLIENT_ID_SIZE          = 16
	VERSION_SIZE            = 1
	OPCODE_SIZE             = 2
	PAYLOAD_SIZE_SIZE       = 4
	NAME_SIZE               = 255
	FILE_NAME_SIZE          = 255
	PUBLIC_KEY_SIZE         = 160
	CONTENT_SIZE_SIZE       = 4
	ORIGINAL_FILE_SIZE_SIZE = 4
	PACKET_NUMBER_SIZE      = 2
	TOTAL_PACKETS_SIZE      = 2
	CRC_SIZE                = 4
)

// Derived header sizes.
const (
	REQUEST_HEADER_SIZE  = CLIENT_ID_SIZE + VERSION_SIZE + OPCODE_SIZE + PAYLOAD_SIZE_SIZE // 23
	RESPONSE_HEADER_SIZE = VERSION_SIZE + OPCODE_SIZE + PAYLOAD_SIZE_SIZE                  // 7
	FILE_HEADER_SIZE     = CONTENT_SIZE_SIZE + ORIGINAL_FILE_SIZE_SIZE +
		PACKET_NUMBER_SIZE + TOTAL_PACKETS_SIZE + FILE_NAME_SIZE // 267
)
