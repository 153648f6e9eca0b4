package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineBuffer(t *testing.T, channels, frames, rate int, freq, amp float64) *Buffer {
	t.Helper()
	buf, err := NewBuffer(channels, frames, rate)
	require.NoError(t, err)
	for ch := range buf.Samples {
		for i := range buf.Samples[ch] {
			buf.Samples[ch][i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		}
	}
	return buf
}

func TestWAVCodecRoundTrip(t *testing.T) {
	for _, depth := range []int{16, 24} {
		codec := &WAVCodec{BitDepth: depth}
		path := filepath.Join(t.TempDir(), "take.wav")
		in := sineBuffer(t, 2, 4800, 48000, 440, 0.5)

		require.NoError(t, codec.Encode(path, in))
		out, meta, err := codec.Decode(path)
		require.NoError(t, err)

		assert.Equal(t, 48000, meta.SampleRate)
		assert.Equal(t, 2, meta.Channels)
		assert.Equal(t, depth, meta.BitDepth)
		assert.InDelta(t, 0.1, meta.Duration, 1e-9)
		require.Equal(t, in.Frames(), out.Frames())

		tolerance := 2.0 / fullScale(depth)
		for ch := range in.Samples {
			for i := range in.Samples[ch] {
				if math.Abs(float64(in.Samples[ch][i]-out.Samples[ch][i])) > tolerance {
					t.Fatalf("%d-bit: sample %d/%d differs: %f vs %f", depth, ch, i, in.Samples[ch][i], out.Samples[ch][i])
				}
			}
		}
	}
}

func TestWAVCodecErrors(t *testing.T) {
	codec := NewWAVCodec()

	_, _, err := codec.Decode(filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorIs(t, err, ErrNotFound)

	junk := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(junk, []byte("definitely not RIFF data"), 0o644))
	_, _, err = codec.Decode(junk)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

// wavHeader returns a canonical 44-byte WAV header for one second of mono
// 32-bit audio with the given format tag, followed by silent samples.
func wavHeader(formatTag uint16) []byte {
	const rate, bits, channels = 8000, 32, 1
	dataSize := uint32(rate * channels * bits / 8)
	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, 36+dataSize)
	b.WriteString("WAVEfmt ")
	for _, v := range []any{
		uint32(16), formatTag, uint16(channels), uint32(rate),
		uint32(rate * channels * bits / 8), uint16(channels * bits / 8), uint16(bits),
	} {
		_ = binary.Write(&b, binary.LittleEndian, v)
	}
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, dataSize)
	b.Write(make([]byte, dataSize))
	return b.Bytes()
}

func TestWAVCodecRejectsFloat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "float.wav")
	require.NoError(t, os.WriteFile(path, wavHeader(wavFormatFloat), 0o644))

	_, _, err := NewWAVCodec().Decode(path)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "format tag 3")
}

func TestWAVCodecDecodesHandWrittenPCM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcm.wav")
	require.NoError(t, os.WriteFile(path, wavHeader(wavFormatPCM), 0o644))

	buf, meta, err := NewWAVCodec().Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, buf.Frames())
	assert.Equal(t, 32, meta.BitDepth)
}

type failingEncoder struct{}

func (failingEncoder) Encode(path string, _ *Buffer) error {
	// leave a partial file behind like a crashed encoder would
	_ = os.WriteFile(path, []byte("partial"), 0o644)
	return assert.AnError
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "master.wav")

	t.Run("success renames into place", func(t *testing.T) {
		require.NoError(t, WriteAtomic(NewWAVCodec(), path, sineBuffer(t, 1, 100, 8000, 100, 0.1)))
		assert.FileExists(t, path)
		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("failure leaves no partial output", func(t *testing.T) {
		failed := filepath.Join(dir, "failed.wav")
		err := WriteAtomic(failingEncoder{}, failed, sineBuffer(t, 1, 100, 8000, 100, 0.1))
		require.Error(t, err)
		assert.NoFileExists(t, failed)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), ".tmp-")
		}
	})
}
