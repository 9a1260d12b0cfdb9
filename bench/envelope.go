package bench

import (
	"encoding/binary"
	"fmt"
	"time"
)

// envelopeMagic marks a payload as a benchmark envelope so the consumer can
// reject foreign messages on a shared topic.
const envelopeMagic uint32 = 0xb3a7c0de

// headerSize is the fixed envelope header: magic, sender id, sequence
// number and send timestamp. Must stay in sync with model.EnvelopeOverhead.
const headerSize = 4 + 4 + 8 + 8

// Envelope is one benchmark message. The sender id and sequence number
// together identify a message uniquely within a run; the send timestamp is
// the producer-local clock at nanosecond resolution.
type Envelope struct {
	Sender   uint32
	Sequence uint64
	SentAt   time.Time
}

// Marshal encodes the envelope into a buffer of exactly size bytes, padding
// the remainder with a repeating filler. size must be able to hold the
// header; TestConfig validation guarantees that for configured runs.
func (e Envelope) Marshal(size int) ([]byte, error) {
	if size < headerSize {
		return nil, fmt.Errorf("message size %d cannot hold %d-byte envelope header", size, headerSize)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf[0:4], envelopeMagic)
	binary.BigEndian.PutUint32(buf[4:8], e.Sender)
	binary.BigEndian.PutUint64(buf[8:16], e.Sequence)
	binary.BigEndian.PutUint64(buf[16:24], uint64(e.SentAt.UnixNano()))
	for i := headerSize; i < size; i++ {
		buf[i] = 'x'
	}
	return buf, nil
}

// UnmarshalEnvelope decodes an envelope header from a received payload.
func UnmarshalEnvelope(buf []byte) (Envelope, error) {
	if len(buf) < headerSize {
		return Envelope{}, fmt.Errorf("payload too short for envelope: %d bytes", len(buf))
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != envelopeMagic {
		return Envelope{}, fmt.Errorf("payload is not a benchmark envelope (magic %#x)", magic)
	}
	return Envelope{
		Sender:   binary.BigEndian.Uint32(buf[4:8]),
		Sequence: binary.BigEndian.Uint64(buf[8:16]),
		SentAt:   time.Unix(0, int64(binary.BigEndian.Uint64(buf[16:24]))),
	}, nil
}
