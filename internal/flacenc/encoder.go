// Package flacenc is the seam to the libFLAC stream encoder. The rip engine
// only sees the Encoder interface; the default factory is backed by the
// github.com/drgolem/go-flac binding.
package flacenc

import (
	"fmt"

	libflac "github.com/drgolem/go-flac/flac"
)

// Options configures one encoding session.
type Options struct {
	SampleRate           int
	Channels             int
	BitsPerSample        int
	CompressionLevel     int
	TotalSamplesEstimate int64
}

// Encoder is a streaming FLAC encoder writing to a file.
type Encoder interface {
	// ProcessInterleaved submits interleaved samples; samplesPerChannel is
	// the per-channel count in this chunk.
	ProcessInterleaved(samples []int32, samplesPerChannel int) error
	// Finish flushes and finalises the stream.
	Finish() error
	// Close releases the encoder resources.
	Close()
}

// Factory opens an encoder writing to path.
type Factory func(path string, opts Options) (Encoder, error)

type libflacEncoder struct {
	enc *libflac.FlacEncoder
}

func (e *libflacEncoder) ProcessInterleaved(samples []int32, samplesPerChannel int) error {
	return e.enc.ProcessInterleaved(samples, samplesPerChannel)
}

func (e *libflacEncoder) Finish() error {
	return e.enc.Finish()
}

func (e *libflacEncoder) Close() {
	e.enc.Close()
}

// New is the default Factory.
func New(path string, opts Options) (Encoder, error) {
	enc, err := libflac.NewFlacEncoder(opts.SampleRate, opts.Channels, opts.BitsPerSample)
	if err != nil {
		return nil, fmt.Errorf("failed to create FLAC encoder: %w", err)
	}
	if err := enc.SetCompressionLevel(opts.CompressionLevel); err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to set FLAC compression level: %w", err)
	}
	if opts.TotalSamplesEstimate > 0 {
		if err := enc.SetTotalSamplesEstimate(opts.TotalSamplesEstimate); err != nil {
			enc.Close()
			return nil, fmt.Errorf("failed to set total samples estimate: %w", err)
		}
	}
	if err := enc.InitFile(path); err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to init FLAC stream encoder: %w", err)
	}
	return &libflacEncoder{enc: enc}, nil
}
