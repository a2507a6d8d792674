package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVHeaderSize is the size of the canonical PCM RIFF/WAVE header.
const WAVHeaderSize = 44

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
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
	Subchunk2Size uint32  // Number of bytes in the data
}

// NewWAVHeader builds the header for n mono PCM16 samples.
func NewWAVHeader(n int, sampleRate int) WAVHeader {
	dataSize := uint32(n * 2)
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// EncodeWAV encodes PCM16 samples into an in-memory mono WAV file.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, NewWAVHeader(len(samples), sampleRate)); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteWAVFile writes float samples to path as a mono PCM16 WAV file.
func WriteWAVFile(path string, samples []float32, sampleRate int) (err error) {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close WAV file: %w", cerr)
		}
	}()

	pcm := Float32ToPCM16(samples)
	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return nil
}

// ReadWAVFile decodes a PCM WAV file into mono float samples and its rate.
func ReadWAVFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s is not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read PCM buffer: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("%s has no sample rate", path)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}

	scale := float32(int64(1) << uint(bitDepth-1))
	// 8-bit PCM is unsigned and centred on 128
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	interleaved := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		interleaved[i] = float32(v-offset) / scale
	}

	return Downmix(interleaved, buf.Format.NumChannels), buf.Format.SampleRate, nil
}
