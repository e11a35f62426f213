package fileio

import "errors"

var (
	ErrConfig             = errors.New("fileio: malformed configuration")
	ErrCredentialNotFound = errors.New("fileio: credential not found")
	ErrSourceFile         = errors.New("fileio: unusable source file")
)
