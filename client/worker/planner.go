package worker

import (
	"errors"
	"fmt"
	"math"

	"go_secure_send/constants"
)

var (
	ErrFileTooLarge  = errors.New("worker: file too large")
	ErrFrameTooSmall = errors.New("worker: frame too small for file packets")
)

// Limits describes the frame budget a file burst has to fit in
type Limits struct {
	FrameSize         int // F: maximum bytes per wire frame
	RequestHeaderSize int // H: carried only by the first packet
	FileHeaderSize    int // P: carried by every packet
}

// DefaultLimits returns the limits of the reference protocol
func DefaultLimits() Limits {
	return Limits{
		FrameSize:         constants.MAX_FRAME_SIZE,
		RequestHeaderSize: constants.REQUEST_HEADER_SIZE,
		FileHeaderSize:    constants.FILE_HEADER_SIZE,
	}
}

// Plan is the packetization of one encrypted file
type Plan struct {
	Size         int // E: encrypted bytes
	FirstChunk   int // content bytes in packet 1
	OtherChunk   int // content bytes in every later packet but the last
	TotalPackets int
}

// Packet is one content range of the encrypted buffer
type Packet struct {
	Number uint16 // 1-based
	Start  int
	End    int // exclusive
}

// Len returns the content length of the packet
func (p Packet) Len() int {
	return p.End - p.Start
}

// NewPlan computes packet count and chunk sizes for size encrypted bytes
func NewPlan(size int, limits Limits) (Plan, error) {
	if size < 0 {
		return Plan{}, fmt.Errorf("worker: negative size %d", size)
	}
	first := limits.FrameSize - limits.FileHeaderSize - limits.RequestHeaderSize
	other := limits.FrameSize - limits.FileHeaderSize
	if first <= 0 || other <= 0 {
		return Plan{}, fmt.Errorf("%w: frame %d, headers %d+%d",
			ErrFrameTooSmall, limits.FrameSize, limits.RequestHeaderSize, limits.FileHeaderSize)
	}

	total := 1
	if remaining := size - first; remaining > 0 {
		// Ceiling division without overflow for large remainders.
		total += remaining / other
		if remaining%other != 0 {
			total++
		}
	}
	if total > math.MaxUint16 {
		return Plan{}, fmt.Errorf("%w: %d bytes need %d packets, limit is %d",
			ErrFileTooLarge, size, total, math.MaxUint16)
	}

	return Plan{
		Size:         size,
		FirstChunk:   first,
		OtherChunk:   other,
		TotalPackets: total,
	}, nil
}

// Packets returns a cursor over the plan. Each cursor walks the packets once.
func (p Plan) Packets() *Cursor {
	return &Cursor{plan: p}
}

// Cursor yields the packets of a plan in order
type Cursor struct {
	plan   Plan
	next   int // number of the next packet, 0 before the first call
	offset int
}

// Next returns the following packet, or false once every packet was produced
func (c *Cursor) Next() (Packet, bool) {
	if c.next >= c.plan.TotalPackets {
		return Packet{}, false
	}
	c.next++

	chunk := c.plan.OtherChunk
	if c.next == 1 {
		chunk = c.plan.FirstChunk
	}
	end := c.offset + chunk
	if end > c.plan.Size {
		end = c.plan.Size
	}

	pkt := Packet{Number: uint16(c.next), Start: c.offset, End: end}
	c.offset = end
	return pkt, true
}
