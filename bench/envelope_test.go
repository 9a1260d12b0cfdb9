package bench

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brokerbench/brokerbench/model"
)

func TestEnvelope_HeaderSizeMatchesConfigOverhead(t *testing.T) {
	// Config validation rejects sizes below model.EnvelopeOverhead on the
	// promise that Marshal can always fit the header.
	require.Equal(t, model.EnvelopeOverhead, headerSize)
}

func TestEnvelope_Roundtrip(t *testing.T) {
	sentAt := time.Unix(0, 1724932800123456789)
	env := Envelope{Sender: 7, Sequence: 42, SentAt: sentAt}

	buf, err := env.Marshal(1024)
	require.NoError(t, err)
	require.Len(t, buf, 1024)

	got, err := UnmarshalEnvelope(buf)
	require.NoError(t, err)
	require.Equal(t, env.Sender, got.Sender)
	require.Equal(t, env.Sequence, got.Sequence)
	require.True(t, got.SentAt.Equal(sentAt))

	// Padding fills everything past the header.
	for i := headerSize; i < len(buf); i++ {
		require.Equal(t, byte('x'), buf[i])
	}
}

func TestEnvelope_MarshalExactHeaderSize(t *testing.T) {
	buf, err := Envelope{Sender: 1, Sequence: 1, SentAt: time.Now()}.Marshal(headerSize)
	require.NoError(t, err)
	require.Len(t, buf, headerSize)

	_, err = Envelope{}.Marshal(headerSize - 1)
	require.Error(t, err)
}

func TestUnmarshalEnvelope_Rejects(t *testing.T) {
	_, err := UnmarshalEnvelope([]byte("short"))
	require.Error(t, err)

	// Right length, wrong magic: a foreign message on the topic.
	foreign := make([]byte, 64)
	_, err = UnmarshalEnvelope(foreign)
	require.Error(t, err)
}
