// Package wav frames linear PCM samples into uncompressed WAV containers
// and decodes them back. Samples are float32 in [-1, 1] outside the
// container and 16-bit little-endian inside it.
package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Header is the fixed 44-byte RIFF/WAVE header for PCM audio.
type Header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // bytes of sample data
}

const headerSize = 44

// Encode writes per-channel float samples as 16-bit PCM WAV. Every channel
// must carry the same number of samples; callers are expected to validate
// that before encoding. Samples are clamped to [-1, 1] and rounded (not
// truncated) when scaled to the 16-bit range.
func Encode(channels [][]float32, sampleRate int) ([]byte, error) {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(len(channels))
	numSamples := len(channels[0])
	bitsPerSample := uint16(16)
	dataSize := uint32(numSamples * int(numChannels) * 2)

	header := Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+int(dataSize)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	interleaved := make([]int16, 0, numSamples*int(numChannels))
	for i := 0; i < numSamples; i++ {
		for c := range channels {
			interleaved = append(interleaved, quantize(channels[c][i]))
		}
	}
	if err := binary.Write(buf, binary.LittleEndian, interleaved); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// quantize clamps a sample to [-1, 1] and rounds it to the 16-bit range.
func quantize(s float32) int16 {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	return int16(math.Round(float64(s) * 32767))
}

// Decode parses a 16-bit PCM WAV file back into per-channel float samples.
func Decode(data []byte) ([][]float32, int, error) {
	header, err := parseHeader(data)
	if err != nil {
		return nil, 0, err
	}

	numChannels := int(header.NumChannels)
	totalSamples := int(header.Subchunk2Size) / 2
	if totalSamples <= 0 {
		return nil, 0, fmt.Errorf("no audio data found")
	}
	if headerSize+totalSamples*2 > len(data) {
		return nil, 0, fmt.Errorf("WAV data truncated: header claims %d bytes, have %d", header.Subchunk2Size, len(data)-headerSize)
	}

	interleaved := make([]int16, totalSamples)
	if err := binary.Read(bytes.NewReader(data[headerSize:]), binary.LittleEndian, interleaved); err != nil {
		return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}

	perChannel := totalSamples / numChannels
	channels := make([][]float32, numChannels)
	for c := range channels {
		channels[c] = make([]float32, perChannel)
	}
	for i := 0; i < perChannel; i++ {
		for c := 0; c < numChannels; c++ {
			v := float32(interleaved[i*numChannels+c]) / 32767
			if v < -1 {
				v = -1
			}
			channels[c][i] = v
		}
	}

	return channels, int(header.SampleRate), nil
}

func parseHeader(data []byte) (*Header, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", headerSize, len(data))
	}

	var header Header
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if header.AudioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}
	if header.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}
	if header.NumChannels == 0 {
		return nil, fmt.Errorf("invalid channel count: 0")
	}
	if header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	return &header, nil
}

// DownmixToMono averages all channels into one. A mono input is returned
// unchanged, same slice, no copy. Speech services accept mono and are not
// sensitive to stereo-mix artifacts, so plain averaging is enough.
func DownmixToMono(channels [][]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	if len(channels) == 1 {
		return channels[0]
	}

	n := len(channels[0])
	mono := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for c := range channels {
			sum += channels[c][i]
		}
		mono[i] = sum / float32(len(channels))
	}
	return mono
}

// Info describes a WAV file without decoding its sample data.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Duration      float64
	DataSize      int
}

// GetInfo extracts metadata from a WAV header.
func GetInfo(data []byte) (*Info, error) {
	header, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	numSamples := int(header.Subchunk2Size) / int(header.BlockAlign)
	return &Info{
		SampleRate:    int(header.SampleRate),
		Channels:      int(header.NumChannels),
		BitsPerSample: int(header.BitsPerSample),
		Duration:      float64(numSamples) / float64(header.SampleRate),
		DataSize:      int(header.Subchunk2Size),
	}, nil
}

// Duration returns the play time of a WAV file in seconds.
func Duration(data []byte) (float64, error) {
	info, err := GetInfo(data)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}
