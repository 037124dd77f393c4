package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var errNotWAV = errors.New("not a RIFF/WAVE file")

// PadSilence returns a copy of a PCM WAV file with d of digital silence
// appended to its data chunk. The RIFF and data chunk sizes are patched so
// the result stays a valid container; chunks after the data chunk are kept.
func PadSilence(data []byte, d time.Duration) ([]byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errNotWAV
	}

	var (
		channels, bits uint16
		rate           uint32
		dataOff        = -1
		dataLen        int
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4:]))
		body := off + 8
		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, fmt.Errorf("short fmt chunk")
			}
			channels = binary.LittleEndian.Uint16(data[body+2:])
			rate = binary.LittleEndian.Uint32(data[body+4:])
			bits = binary.LittleEndian.Uint16(data[body+14:])
		case "data":
			dataOff = body
			dataLen = min(size, len(data)-body)
		}
		if dataOff >= 0 && channels > 0 {
			break
		}
		off = body + size + size%2
	}
	if dataOff < 0 || channels == 0 {
		return nil, fmt.Errorf("missing fmt or data chunk")
	}

	frameBytes := int(channels) * int(bits+7) / 8
	frames := int(float64(rate) * d.Seconds())
	silence := frames * frameBytes
	// 8-bit PCM is unsigned; silence is the midpoint
	fill := byte(0)
	if bits == 8 {
		fill = 0x80
	}

	end := dataOff + dataLen
	out := make([]byte, 0, len(data)+silence)
	out = append(out, data[:end]...)
	for range silence {
		out = append(out, fill)
	}
	out = append(out, data[end:]...)

	binary.LittleEndian.PutUint32(out[dataOff-4:], uint32(dataLen+silence))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(out)-8))
	return out, nil
}

// normalize rewrites a capture as 16 kHz mono 16-bit PCM.
func normalize(rawPath, outPath string) error {
	in, err := os.Open(rawPath)
	if err != nil {
		return err
	}
	defer in.Close()

	dec := wav.NewDecoder(in)
	if !dec.IsValidFile() {
		return errNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("decoding %s: %w", rawPath, err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 || buf.Format.SampleRate == 0 {
		return fmt.Errorf("decoding %s: missing format", rawPath)
	}

	mono := downmix(buf.Data, buf.Format.NumChannels, buf.SourceBitDepth)
	samples := resample(mono, buf.Format.SampleRate, SampleRate)

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(out, SampleRate, BitsPerSample, Channels, 1)
	err = enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: SampleRate},
		Data:           samples,
		SourceBitDepth: BitsPerSample,
	})
	if err == nil {
		err = enc.Close()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outPath)
		return fmt.Errorf("encoding %s: %w", outPath, err)
	}
	return nil
}

// downmix averages interleaved channels and rescales to 16-bit range.
func downmix(data []int, channels, bitDepth int) []int {
	shift := bitDepth - 16
	frames := len(data) / channels
	out := make([]int, frames)
	for i := range frames {
		sum := 0
		for c := range channels {
			sum += data[i*channels+c]
		}
		v := sum / channels
		switch {
		case bitDepth == 8:
			v = (v - 128) << 8
		case shift > 0:
			v >>= shift
		case shift < 0:
			v <<= -shift
		}
		out[i] = clamp16(v)
	}
	return out
}

// resample converts between rates. Downsampling averages the source samples
// covered by each output sample; upsampling interpolates linearly.
func resample(samples []int, from, to int) []int {
	if from == to || len(samples) == 0 {
		return samples
	}
	ratio := float64(from) / float64(to)
	n := int(float64(len(samples)) / ratio)
	out := make([]int, n)

	if ratio > 1 {
		for i := range n {
			start := int(float64(i) * ratio)
			end := min(int(float64(i+1)*ratio), len(samples))
			if end <= start {
				end = start + 1
			}
			sum := 0
			for _, s := range samples[start:end] {
				sum += s
			}
			out[i] = sum / (end - start)
		}
		return out
	}

	for i := range n {
		pos := float64(i) * ratio
		i0 := int(pos)
		i1 := min(i0+1, len(samples)-1)
		frac := pos - float64(i0)
		out[i] = int(math.Round(float64(samples[i0])*(1-frac) + float64(samples[i1])*frac))
	}
	return out
}

func clamp16(v int) int {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return v
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
