package audio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"
)

func TestWriteWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}

	var buf bytes.Buffer
	require.NoError(t, WriteWAV(&buf, samples, 16000))

	assert.Equal(t, "RIFF", buf.String()[:4])

	reader := wav.NewReader(bytes.NewReader(buf.Bytes()))
	format, err := reader.Format()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), format.NumChannels)
	assert.Equal(t, uint32(16000), format.SampleRate)
	assert.Equal(t, uint16(16), format.BitsPerSample)

	var decoded []int16
	for {
		chunk, err := reader.ReadSamples()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		for _, s := range chunk {
			decoded = append(decoded, int16(reader.IntValue(s, 0)))
		}
	}
	assert.Equal(t, samples, decoded)
}

func TestWriteWAVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWAV(&buf, nil, 16000))
	assert.NotZero(t, buf.Len())
}
