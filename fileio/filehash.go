package fileio

import (
	"fmt"
	"hash"
	"io"
	"os"
)

// cksumPoly is the CRC-32 generator used by POSIX cksum, processed MSB first.
const cksumPoly = 0x04C11DB7

var cksumTable = makeCksumTable()

func makeCksumTable() *[256]uint32 {
	t := new([256]uint32)
	for i := range t {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ cksumPoly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// cksum is a hash.Hash32 producing the same value as the POSIX cksum utility
type cksum struct {
	crc    uint32
	length uint64
}

// NewCksum returns a hash computing the POSIX cksum CRC
func NewCksum() hash.Hash32 {
	return new(cksum)
}

func (d *cksum) Write(p []byte) (int, error) {
	d.crc = progressiveChecksumCksum(d.crc, p)
	d.length += uint64(len(p))
	return len(p), nil
}

// Sum32 folds the message length into the CRC, least significant byte first
func (d *cksum) Sum32() uint32 {
	crc := d.crc
	for n := d.length; n != 0; n >>= 8 {
		crc = crc<<8 ^ cksumTable[byte(crc>>24)^byte(n)]
	}
	return ^crc
}

func (d *cksum) Sum(in []byte) []byte {
	s := d.Sum32()
	return append(in, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}

func (d *cksum) Reset()         { *d = cksum{} }
func (d *cksum) Size() int      { return 4 }
func (d *cksum) BlockSize() int { return 1 }

// progressiveChecksumCksum incrementally updates the cksum CRC
func progressiveChecksumCksum(crc uint32, data []byte) uint32 {
	for _, b := range data {
		crc = crc<<8 ^ cksumTable[byte(crc>>24)^b]
	}
	return crc
}

// GetFileChecksumCksum returns the POSIX cksum CRC of given file
func GetFileChecksumCksum(file string) (uint32, error) {
	handle, err := os.Open(file)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceFile, err)
	}
	defer handle.Close()

	hash := NewCksum()
	if _, err := io.CopyBuffer(hash, handle, make([]byte, 64*1024)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceFile, err)
	}
	return hash.Sum32(), nil
}

// ChecksumBytes returns the POSIX cksum CRC of data
func ChecksumBytes(data []byte) uint32 {
	hash := NewCksum()
	hash.Write(data)
	return hash.Sum32()
}
