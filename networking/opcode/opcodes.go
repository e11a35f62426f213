package opcode

import "strconv"

// Request codes sent by the client.
const (
	REGISTER    uint16 = 825 // New user, no identity yet
	PUBLIC_KEY  uint16 = 826 // Public key after registration
	LOGIN       uint16 = 827 // Returning user with saved identity
	SEND_FILE   uint16 = 828 // First packet of a file burst
	CRC_VALID   uint16 = 900 // Server checksum matched
	CRC_INVALID uint16 = 901 // Server checksum mismatched, file follows again
	CRC_FATAL   uint16 = 902 // Giving up on the file
)

// Response codes sent by the server.
const (
	REGISTRATION_OK     uint16 = 1600
	REGISTRATION_FAILED uint16 = 1601
	SESSION_KEY         uint16 = 1602
	FILE_VALID          uint16 = 1603
	ACK                 uint16 = 1604
	LOGIN_OK            uint16 = 1605
	LOGIN_FAILED        uint16 = 1606
	GENERIC_ERROR       uint16 = 1607
)

var names = map[uint16]string{
	REGISTER:            "register",
	PUBLIC_KEY:          "public_key",
	LOGIN:               "login",
	SEND_FILE:           "send_file",
	CRC_VALID:           "crc_valid",
	CRC_INVALID:         "crc_invalid",
	CRC_FATAL:           "crc_fatal",
	REGISTRATION_OK:     "registration_ok",
	REGISTRATION_FAILED: "registration_failed",
	SESSION_KEY:         "session_key",
	FILE_VALID:          "file_valid",
	ACK:                 "ack",
	LOGIN_OK:            "login_ok",
	LOGIN_FAILED:        "login_failed",
	GENERIC_ERROR:       "generic_error",
}

// Name returns a readable label for logs and metrics
func Name(code uint16) string {
	if name, ok := names[code]; ok {
		return name
	}
	return "unknown_" + strconv.Itoa(int(code))
}
