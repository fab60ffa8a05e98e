// Package recvbuf implements the receiver-side reassembly buffer (spec
// §4.6): it buffers out-of-order segments, drains the contiguous prefix to
// an io.Writer, and synthesizes SACK blocks. Adapted from the teacher's
// internal/quantum/reliability.ReceiveBuffer, generalized from a
// packet-count window to the spec's byte-addressed sequence space and with
// file delivery folded directly into arrival processing.
package recvbuf

import (
	"fmt"
	"io"
	"sort"

	"github.com/qrudp/qrudp/internal/protocol"
)

// Buffer reassembles a byte stream from out-of-order data packets and
// writes the contiguous prefix to out as it becomes available.
type Buffer struct {
	out          io.Writer
	nextExpected uint32
	buffered     map[uint32][]byte

	sawEOF bool
	eofSeq uint32

	duplicates uint64
	outOfOrder uint64
}

// New creates a reassembly buffer that writes to out.
func New(out io.Writer) *Buffer {
	return &Buffer{
		out:      out,
		buffered: make(map[uint32][]byte),
	}
}

// NextExpected returns the length of the contiguous prefix already written.
func (b *Buffer) NextExpected() uint32 { return b.nextExpected }

// BufferedCount returns the number of out-of-order segments currently held.
func (b *Buffer) BufferedCount() int { return len(b.buffered) }

// Deliver processes one received data packet per spec §4.6's four cases:
// EOF marker, next-expected (write + drain), ahead-of-window (buffer unless
// duplicate), and behind-window (discard as duplicate).
func (b *Buffer) Deliver(pkt *protocol.DataPacket) error {
	if pkt.EOF {
		b.sawEOF = true
		b.eofSeq = pkt.Seq
		return nil
	}

	switch {
	case pkt.Seq == b.nextExpected:
		if err := b.write(pkt.Payload); err != nil {
			return err
		}
		b.nextExpected += uint32(len(pkt.Payload))
		return b.drain()

	case pkt.Seq > b.nextExpected:
		if _, exists := b.buffered[pkt.Seq]; exists {
			b.duplicates++
			return nil
		}
		b.buffered[pkt.Seq] = pkt.Payload
		b.outOfOrder++
		return nil

	default: // pkt.Seq < b.nextExpected
		b.duplicates++
		return nil
	}
}

func (b *Buffer) write(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	n, err := b.out.Write(payload)
	if err != nil {
		return fmt.Errorf("recvbuf: write failed: %w", err)
	}
	if n != len(payload) {
		return fmt.Errorf("recvbuf: short write: wrote %d of %d bytes", n, len(payload))
	}
	return nil
}

func (b *Buffer) drain() error {
	for {
		payload, ok := b.buffered[b.nextExpected]
		if !ok {
			return nil
		}
		if err := b.write(payload); err != nil {
			return err
		}
		delete(b.buffered, b.nextExpected)
		b.nextExpected += uint32(len(payload))
	}
}

// SACK returns the cumulative ACK value (next_expected) and up to two SACK
// blocks built by coalescing adjacent/overlapping buffered ranges and
// taking the first two runs in ascending order (§4.6, §9).
func (b *Buffer) SACK() (uint32, []protocol.SACKBlock) {
	if len(b.buffered) == 0 {
		return b.nextExpected, nil
	}

	seqs := make([]uint32, 0, len(b.buffered))
	for seq := range b.buffered {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var blocks []protocol.SACKBlock
	cur := protocol.SACKBlock{Start: seqs[0], End: seqs[0] + uint32(len(b.buffered[seqs[0]]))}
	for _, seq := range seqs[1:] {
		end := seq + uint32(len(b.buffered[seq]))
		if seq <= cur.End {
			if end > cur.End {
				cur.End = end
			}
			continue
		}
		blocks = append(blocks, cur)
		cur = protocol.SACKBlock{Start: seq, End: end}
	}
	blocks = append(blocks, cur)

	if len(blocks) > protocol.MaxSACKBlocks {
		blocks = blocks[:protocol.MaxSACKBlocks]
	}
	return b.nextExpected, blocks
}

// Complete reports whether the transfer is finished: an EOF marker has been
// seen and its sequence number equals the contiguous prefix already
// written (spec §4.6).
func (b *Buffer) Complete() bool {
	return b.sawEOF && b.eofSeq == b.nextExpected
}

// Statistics returns duplicate/out-of-order counters for observability.
func (b *Buffer) Statistics() map[string]uint64 {
	return map[string]uint64{
		"duplicates":   b.duplicates,
		"out_of_order": b.outOfOrder,
		"buffered":     uint64(len(b.buffered)),
	}
}
