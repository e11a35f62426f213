package fileio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// BufferedReader does buffered file reads
type BufferedReader struct {
	file      *os.File
	reader    *bufio.Reader
	size      int64
	chunkSize int
	rqLen     int
	err       error
}

// OpenBuffered opens a regular, non-empty file for chunked reading
func OpenBuffered(filename string, chunkSize, numchunks int) (*BufferedReader, error) {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	info, err := os.Stat(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceFile, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a file", ErrSourceFile, filename)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrSourceFile, filename)
	}
	if info.Size() > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrSourceFile, filename, info.Size(), uint32(math.MaxUint32))
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceFile, err)
	}
	return &BufferedReader{
		file:      file,
		reader:    bufio.NewReaderSize(file, chunkSize),
		size:      info.Size(),
		chunkSize: chunkSize,
		rqLen:     numchunks,
	}, nil
}

// Size is the file size seen when the file was opened
func (b *BufferedReader) Size() int64 {
	return b.size
}

// StartReading starts a goroutine to read file contents in chunks. The
// channel is closed at end of file or on the first read error; Err reports
// which after the channel is drained.
func (b *BufferedReader) StartReading() <-chan []byte {
	if b.file == nil {
		panic("cannot start reading without file handle")
	}
	outChan := make(chan []byte, b.rqLen)
	go func(channel chan<- []byte) {
		defer close(channel)
		defer b.file.Close()
		for {
			buf := make([]byte, b.chunkSize)
			// Read from file.
			read, err := b.reader.Read(buf)
			if read > 0 {
				channel <- buf[:read]
			}
			if errors.Is(err, io.EOF) {
				// File has been fully consumed.
				return
			}
			if err != nil {
				b.err = err
				return
			}
		}
	}(outChan)
	return outChan
}

// Err returns the read error, if any. Only valid once the channel is closed.
func (b *BufferedReader) Err() error {
	return b.err
}

// ReadAll collects every chunk into one buffer
func (b *BufferedReader) ReadAll() ([]byte, error) {
	data := make([]byte, 0, b.size)
	for chunk := range b.StartReading() {
		data = append(data, chunk...)
	}
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceFile, err)
	}
	if int64(len(data)) != b.size {
		return nil, fmt.Errorf("%w: read %d bytes, expected %d", ErrSourceFile, len(data), b.size)
	}
	return data, nil
}
