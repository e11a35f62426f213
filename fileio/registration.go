package fileio

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"go_secure_send/constants"
)

// Registration is the content of the registration source: where to connect,
// who to register as and which file to send.
type Registration struct {
	Address  string
	Port     uint16
	User     string
	FilePath string
}

// Endpoint returns the dialable host:port form
func (r Registration) Endpoint() string {
	return net.JoinHostPort(r.Address, strconv.Itoa(int(r.Port)))
}

// ReadRegistration reads and validates a registration file
func ReadRegistration(path string) (Registration, error) {
	file, err := os.Open(path)
	if err != nil {
		return Registration{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	defer file.Close()
	return ParseRegistration(file)
}

// ParseRegistration expects three non-empty lines: address:port, user name
// and file path. Blank lines are skipped and every line is trimmed.
func ParseRegistration(r io.Reader) (Registration, error) {
	lines, err := readLines(r, 3)
	if err != nil {
		return Registration{}, err
	}

	var reg Registration
	host, port, ok := strings.Cut(lines[0], ":")
	if !ok {
		return Registration{}, fmt.Errorf("%w: address %q has no port", ErrConfig, lines[0])
	}
	reg.Address = strings.TrimSpace(host)
	if reg.Address == "" {
		return Registration{}, fmt.Errorf("%w: empty address", ErrConfig)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(port), 10, 16)
	if err != nil || n == 0 {
		return Registration{}, fmt.Errorf("%w: port %q is not in 1..65535", ErrConfig, port)
	}
	reg.Port = uint16(n)

	reg.User = lines[1]
	if len(reg.User) >= constants.NAME_SIZE {
		return Registration{}, fmt.Errorf("%w: user name is %d bytes, limit is %d",
			ErrConfig, len(reg.User), constants.NAME_SIZE-1)
	}
	reg.FilePath = lines[2]
	if len(reg.FilePath) >= constants.FILE_NAME_SIZE {
		return Registration{}, fmt.Errorf("%w: file path is %d bytes, limit is %d",
			ErrConfig, len(reg.FilePath), constants.FILE_NAME_SIZE-1)
	}
	return reg, nil
}

// readLines returns exactly want trimmed non-empty lines
func readLines(r io.Reader, want int) ([]string, error) {
	lines := make([]string, 0, want)
	scanner := bufio.NewScanner(r)
	// Credential lines hold a base64 private key, longer than a name.
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(lines) == want {
			return nil, fmt.Errorf("%w: more than %d lines", ErrConfig, want)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if len(lines) < want {
		return nil, fmt.Errorf("%w: expected %d lines, got %d", ErrConfig, want, len(lines))
	}
	return lines, nil
}
