package worker

import (
	"fmt"
	"math"

	"go_secure_send/networking"
	"go_secure_send/networking/opcode"
)

// FrameSender is the part of the transport a burst writes to
type FrameSender interface {
	SendFrame(frame []byte) error
}

// Burst is one encrypted file cut into packets
type Burst struct {
	ClientID     networking.ClientID
	FileName     string
	OriginalSize uint32
	Encrypted    []byte
	Plan         Plan
}

// BurstStats summarizes what a burst wrote
type BurstStats struct {
	Packets int
	Bytes   int
}

// NewBurst plans the packets for an encrypted file of originalSize plaintext bytes
func NewBurst(id networking.ClientID, fileName string, originalSize int, encrypted []byte, limits Limits) (*Burst, error) {
	if originalSize < 0 || uint64(originalSize) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes does not fit the original size field", ErrFileTooLarge, originalSize)
	}
	plan, err := NewPlan(len(encrypted), limits)
	if err != nil {
		return nil, err
	}
	return &Burst{
		ClientID:     id,
		FileName:     fileName,
		OriginalSize: uint32(originalSize),
		Encrypted:    encrypted,
		Plan:         plan,
	}, nil
}

// Send writes every packet back to back. The first packet goes out as a full
// request, the rest as bare file payloads. The returned request is packet 1.
func (b *Burst) Send(out FrameSender) (networking.Request, BurstStats, error) {
	var first networking.Request
	var stats BurstStats
	total := uint16(b.Plan.TotalPackets)

	cursor := b.Plan.Packets()
	for {
		pkt, ok := cursor.Next()
		if !ok {
			break
		}
		payload := networking.NewSendFileRequest(b.OriginalSize, pkt.Number, total,
			b.FileName, b.Encrypted[pkt.Start:pkt.End])

		var frame []byte
		var err error
		if pkt.Number == 1 {
			first = networking.NewRequest(b.ClientID, opcode.SEND_FILE, payload)
			frame, err = networking.EncodeRequest(first)
		} else {
			frame, err = networking.EncodePayload(payload, payload.Size())
		}
		if err != nil {
			return first, stats, err
		}
		if err := out.SendFrame(frame); err != nil {
			return first, stats, err
		}
		stats.Packets++
		stats.Bytes += len(frame)
	}
	return first, stats, nil
}
