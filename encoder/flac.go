// Package encoder compresses recorded audio before upload.
package encoder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const blockSize = 4096

var (
	ErrNotWAV      = errors.New("not a WAV file")
	ErrUnsupported = errors.New("only 16-bit mono PCM can be encoded")
)

// FLAC converts a 16-bit mono PCM WAV file to FLAC. Every frame is analysed
// for the best fixed predictor, so silence and speech pauses compress well.
func FLAC(wavData []byte) ([]byte, error) {
	dec := wav.NewDecoder(bytes.NewReader(wavData))
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	if dec.NumChans != 1 || dec.BitDepth != 16 {
		return nil, fmt.Errorf("%w: %d channels, %d bits", ErrUnsupported, dec.NumChans, dec.BitDepth)
	}

	var out bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  blockSize,
		BlockSizeMax:  blockSize,
		SampleRate:    dec.SampleRate,
		NChannels:     1,
		BitsPerSample: 16,
		NSamples:      uint64(len(buf.Data)),
	}
	enc, err := flac.NewEncoder(&out, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)

	for off := 0; off < len(buf.Data); off += blockSize {
		block := buf.Data[off:min(off+blockSize, len(buf.Data))]
		samples := make([]int32, len(block))
		for i, v := range block {
			samples[i] = int32(v)
		}
		f := &frame.Frame{
			Header: frame.Header{
				BlockSize:     uint16(len(samples)),
				SampleRate:    dec.SampleRate,
				Channels:      frame.ChannelsMono,
				BitsPerSample: 16,
			},
			Subframes: []*frame.Subframe{{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   samples,
				NSamples:  len(samples),
			}},
		}
		if err := enc.WriteFrame(f); err != nil {
			return nil, fmt.Errorf("writing flac frame: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing flac stream: %w", err)
	}
	return out.Bytes(), nil
}
