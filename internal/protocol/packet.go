// Package protocol implements the wire format of the QRUDP reliable
// file-transfer protocol: fixed 20-byte headers for data and ACK packets.
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the fixed header length shared by data and ACK packets.
	HeaderSize = 20

	// MaxPayload is the largest data payload a single packet may carry.
	MaxPayload = 1180

	// MTU is the maximum total packet size (header + payload).
	MTU = HeaderSize + MaxPayload

	// MaxSACKBlocks is the number of SACK blocks carried by an ACK packet.
	MaxSACKBlocks = 2

	// eofMarker is the literal payload of an EOF data packet.
	eofMarker = "EOF"
)

// SACKBlock is a half-open byte range [Start, End) the receiver holds.
type SACKBlock struct {
	Start uint32
	End   uint32
}

// Absent reports whether the block should be treated as not present on the
// wire: (0,0) or any End <= Start, per §3.
func (b SACKBlock) Absent() bool {
	return b.End <= b.Start
}

// Covers reports whether the whole range [seq, seq+size) lies inside
// [Start, End) — a segment is only "sacked" when it is fully contained,
// per §9's requirement that senders not treat a partially-covered segment
// as acknowledged.
func (b SACKBlock) Covers(seq, size uint32) bool {
	if b.Absent() || size == 0 {
		return false
	}
	end := seq + size
	return seq >= b.Start && end <= b.End
}

// DataPacket is a data-carrying segment: sequence number plus payload.
type DataPacket struct {
	Seq     uint32
	Payload []byte
	EOF     bool
}

// EncodeData serializes a data packet. EOF packets carry the literal "EOF"
// as their payload regardless of the caller-supplied payload argument.
func EncodeData(seq uint32, payload []byte, eof bool) ([]byte, error) {
	if !eof && len(payload) > MaxPayload {
		return nil, fmt.Errorf("protocol: payload too large: %d > %d", len(payload), MaxPayload)
	}

	body := payload
	if eof {
		body = []byte(eofMarker)
	}

	buf := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(buf[0:4], seq)
	// bytes [4:20) are reserved, left zero.
	copy(buf[HeaderSize:], body)
	return buf, nil
}

// DecodeData parses a data packet. It rejects fragments shorter than the
// header; it never errors on the payload contents.
func DecodeData(data []byte) (*DataPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("protocol: data packet too short: %d < %d", len(data), HeaderSize)
	}

	seq := binary.BigEndian.Uint32(data[0:4])
	payload := append([]byte(nil), data[HeaderSize:]...)

	return &DataPacket{
		Seq:     seq,
		Payload: payload,
		EOF:     len(payload) == len(eofMarker) && string(payload) == eofMarker,
	}, nil
}

// AckPacket is an acknowledgement: a cumulative/selective value plus up to
// two SACK blocks (Variant A leaves the blocks absent).
type AckPacket struct {
	Ack   uint32
	SACKs [MaxSACKBlocks]SACKBlock
}

// EncodeAck serializes an ACK packet. Fewer than two blocks are zero-padded;
// more than two are truncated to the first two, per §4.6 ("take the first
// two runs").
func EncodeAck(ack uint32, blocks []SACKBlock) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], ack)

	for i := 0; i < MaxSACKBlocks; i++ {
		offset := 4 + i*8
		if i < len(blocks) {
			binary.BigEndian.PutUint32(buf[offset:offset+4], blocks[i].Start)
			binary.BigEndian.PutUint32(buf[offset+4:offset+8], blocks[i].End)
		}
	}

	return buf
}

// DecodeAck parses an ACK packet. It rejects fragments shorter than the
// header.
func DecodeAck(data []byte) (*AckPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("protocol: ack packet too short: %d < %d", len(data), HeaderSize)
	}

	pkt := &AckPacket{Ack: binary.BigEndian.Uint32(data[0:4])}
	for i := 0; i < MaxSACKBlocks; i++ {
		offset := 4 + i*8
		pkt.SACKs[i] = SACKBlock{
			Start: binary.BigEndian.Uint32(data[offset : offset+4]),
			End:   binary.BigEndian.Uint32(data[offset+4 : offset+8]),
		}
	}

	return pkt, nil
}

// ActiveSACKs returns the non-absent blocks, in wire order.
func (p *AckPacket) ActiveSACKs() []SACKBlock {
	var out []SACKBlock
	for _, b := range p.SACKs {
		if !b.Absent() {
			out = append(out, b)
		}
	}
	return out
}
