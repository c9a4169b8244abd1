// Package audio implements the decoder collaborator: filesystem path in,
// float32 PCM samples out. Grounded on the teacher's main/upload.go
// (LoadWAVFile/LoadMP3File/StereoToMono), generalized to return
// per-channel float32 samples in [-1, 1] instead of raw int16, and to
// report typed errors instead of ad hoc fmt.Errorf strings.
package audio

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"soundmark/internal/config"
	"soundmark/internal/errs"
)

// Decoded holds the result of decoding one audio file: per-channel
// samples (Channels[c][i]) plus the sample rate.
type Decoded struct {
	Channels   [][]float32
	SampleRate int
}

// Decode reads path (.wav or .mp3) and returns its decoded PCM samples.
func Decode(path string) (*Decoded, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errs.NotFound(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(path)
	case ".mp3":
		return decodeMP3(path)
	default:
		return nil, errs.UnsupportedFormat(path)
	}
}

func decodeWAV(path string) (*Decoded, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errs.DecodeFailed(err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, errs.DecodeFailed(nil)
	}

	format := decoder.Format()
	numChannels := format.NumChannels
	if numChannels < 1 {
		numChannels = 1
	}

	channels := make([][]float32, numChannels)

	const bufferSize = 8192
	buf := &goaudio.IntBuffer{Data: make([]int, bufferSize), Format: format}

	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil && err != io.EOF {
			return nil, errs.DecodeFailed(err)
		}

		bitDepth := decoder.BitDepth
		if bitDepth == 0 {
			bitDepth = 16
		}
		maxAmplitude := float32(int32(1) << (uint(bitDepth) - 1))

		for i := 0; i < n; i++ {
			ch := i % numChannels
			channels[ch] = append(channels[ch], float32(buf.Data[i])/maxAmplitude)
		}
		if n < bufferSize || err == io.EOF {
			break
		}
	}

	return &Decoded{Channels: channels, SampleRate: int(format.SampleRate)}, nil
}

func decodeMP3(path string) (*Decoded, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errs.DecodeFailed(err)
	}
	defer file.Close()

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		return nil, errs.DecodeFailed(err)
	}

	sampleRate := decoder.SampleRate()
	const bufferSize = 8192
	buf := make([]byte, bufferSize)

	var left, right []float32
	for {
		n, err := decoder.Read(buf)
		if err != nil && err != io.EOF {
			return nil, errs.DecodeFailed(err)
		}
		for i := 0; i+3 < n; i += 4 {
			l := int16(binary.LittleEndian.Uint16(buf[i : i+2]))
			r := int16(binary.LittleEndian.Uint16(buf[i+2 : i+4]))
			left = append(left, float32(l)/32768.0)
			right = append(right, float32(r)/32768.0)
		}
		if n == 0 || err == io.EOF {
			break
		}
	}

	return &Decoded{Channels: [][]float32{left, right}, SampleRate: sampleRate}, nil
}

// ToMono reduces d's channels to one mono channel, or returns each
// channel independently, per p.Stereo.
func ToMono(d *Decoded, p config.Params) [][]float32 {
	if len(d.Channels) <= 1 {
		return d.Channels
	}
	if p.Stereo == config.StereoIndependent {
		return d.Channels
	}

	n := len(d.Channels[0])
	for _, c := range d.Channels {
		if len(c) < n {
			n = len(c)
		}
	}
	mono := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for _, c := range d.Channels {
			sum += c[i]
		}
		mono[i] = sum / float32(len(d.Channels))
	}
	return [][]float32{mono}
}
