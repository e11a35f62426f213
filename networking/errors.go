package networking

import "errors"

var (
	ErrEncoding    = errors.New("networking: encoding failed")
	ErrDecoding    = errors.New("networking: decoding failed")
	ErrKeyExchange = errors.New("networking: key exchange failed")
	ErrNoSession   = errors.New("networking: no session key installed")
)
