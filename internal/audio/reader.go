package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV format tags
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// Metadata contains audio file metadata
type Metadata struct {
	Duration   float64 // seconds
	SampleRate int
	Channels   int
	BitDepth   int
}

// Decoder turns a file into a float32 buffer.
type Decoder interface {
	Decode(path string) (*Buffer, *Metadata, error)
}

// Encoder writes a float32 buffer to a file.
type Encoder interface {
	Encode(path string, buf *Buffer) error
}

// WAVCodec reads and writes PCM WAV files.
// BitDepth applies to encoding only; decoding uses the file's own depth.
type WAVCodec struct {
	BitDepth int
}

// NewWAVCodec returns a codec writing 24-bit PCM.
func NewWAVCodec() *WAVCodec {
	return &WAVCodec{BitDepth: 24}
}

// Decode reads a PCM WAV file into a Buffer with samples normalised to [-1, 1].
func (c *WAVCodec) Decode(path string) (*Buffer, *Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrUnsupportedFormat, path)
	}
	// integer PCM only; extensible headers are how recorders label 24-bit PCM
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, nil, fmt.Errorf("%w: %s uses WAV format tag %d, want integer PCM", ErrUnsupportedFormat, path, dec.WavAudioFormat)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read PCM data from %s: %v", ErrUnsupportedFormat, path, err)
	}
	if pcm.Format == nil || pcm.Format.NumChannels <= 0 || pcm.Format.SampleRate <= 0 {
		return nil, nil, fmt.Errorf("%w: %s has no usable format chunk", ErrUnsupportedFormat, path)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = pcm.SourceBitDepth
	}
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 && bitDepth != 8 {
		return nil, nil, fmt.Errorf("%w: %d-bit PCM", ErrUnsupportedFormat, bitDepth)
	}

	buf, err := fromInterleaved(pcm.Data, pcm.Format.NumChannels, pcm.Format.SampleRate, bitDepth)
	if err != nil {
		return nil, nil, err
	}

	meta := &Metadata{
		Duration:   buf.Seconds(),
		SampleRate: buf.SampleRate,
		Channels:   buf.Channels(),
		BitDepth:   bitDepth,
	}
	return buf, meta, nil
}

// Encode writes buf as PCM WAV at the codec's bit depth.
func (c *WAVCodec) Encode(path string, buf *Buffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	bitDepth := c.BitDepth
	if bitDepth == 0 {
		bitDepth = 24
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	enc := wav.NewEncoder(f, buf.SampleRate, bitDepth, buf.Channels(), 1)
	pcm := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: buf.Channels(), SampleRate: buf.SampleRate},
		Data:           toInterleaved(buf, bitDepth),
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(pcm); err != nil {
		f.Close()
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalise WAV header: %w", err)
	}
	return f.Close()
}

func fullScale(bitDepth int) float64 {
	return float64(int64(1) << (bitDepth - 1))
}

func fromInterleaved(data []int, channels, sampleRate, bitDepth int) (*Buffer, error) {
	frames := len(data) / channels
	buf, err := NewBuffer(channels, frames, sampleRate)
	if err != nil {
		return nil, err
	}
	scale := 1.0 / fullScale(bitDepth)
	// 8-bit WAV is unsigned
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			buf.Samples[ch][i] = float32(float64(data[i*channels+ch]-offset) * scale)
		}
	}
	return buf, nil
}

func toInterleaved(buf *Buffer, bitDepth int) []int {
	channels := buf.Channels()
	frames := buf.Frames()
	out := make([]int, frames*channels)
	scale := fullScale(bitDepth)
	maxVal := scale - 1
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			v := float64(buf.Samples[ch][i]) * scale
			v = max(-scale, min(maxVal, v))
			if v >= 0 {
				v += 0.5
			} else {
				v -= 0.5
			}
			out[i*channels+ch] = int(v) + offset
		}
	}
	return out
}
