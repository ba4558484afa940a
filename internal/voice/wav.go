package voice

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
)

// PCM16 stream format produced by realtime sessions
const (
	DefaultSampleRate = 24000
	channels          = 1
	bitsPerSample     = 16
)

// WriteWAV wraps raw little-endian PCM16 mono samples in a 44-byte RIFF
// header. The samples are copied through unchanged; a trailing odd byte
// is dropped.
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if len(pcm)%2 != 0 {
		log.Debug().Int("bytes", len(pcm)).Msg("PCM data size is odd, truncating")
		pcm = pcm[:len(pcm)-1]
	}

	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := uint32(len(pcm))

	header := struct {
		ChunkID       [4]byte
		ChunkSize     uint32
		Format        [4]byte
		Subchunk1ID   [4]byte
		Subchunk1Size uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Subchunk2ID   [4]byte
		Subchunk2Size uint32
	}{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(byteRate),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return nil
}

// SaveTurnAudio writes one turn's audio as <dir>/<turn>_<speaker>.wav and
// returns the file path.
func SaveTurnAudio(dir, speaker string, turn int, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", fmt.Errorf("no audio data for %s", speaker)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%03d_%s.wav", turn, sanitizeFileName(speaker)))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create audio file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := WriteWAV(f, pcm, DefaultSampleRate); err != nil {
		return "", err
	}

	log.Debug().Str("path", path).Int("bytes", len(pcm)).Msg("Saved turn audio")
	return path, nil
}

// ReadPCM returns the PCM16 samples of a WAV file, or the raw contents of
// any other file. Only uncompressed 16-bit WAV data is accepted.
func ReadPCM(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data, nil
	}
	return parseWAV(data)
}

var errInvalidWAV = errors.New("invalid WAV file")

// parseWAV walks the RIFF chunks and returns the data chunk.
func parseWAV(data []byte) ([]byte, error) {
	r := bytes.NewReader(data[12:])
	var format struct {
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}
	seenFormat := false

	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			return nil, fmt.Errorf("%w: no data chunk", errInvalidWAV)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			if chunk.Size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", errInvalidWAV)
			}
			if err := binary.Read(r, binary.LittleEndian, &format); err != nil {
				return nil, fmt.Errorf("%w: %v", errInvalidWAV, err)
			}
			if format.AudioFormat != 1 || format.BitsPerSample != bitsPerSample {
				return nil, fmt.Errorf("%w: only 16-bit PCM is supported", errInvalidWAV)
			}
			if format.SampleRate != DefaultSampleRate || format.NumChannels != channels {
				log.Warn().
					Uint32("sample_rate", format.SampleRate).
					Uint16("channels", format.NumChannels).
					Msg("WAV file is not 24kHz mono, audio is passed through unchanged")
			}
			if _, err := r.Seek(int64(chunk.Size-16+chunk.Size%2), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("%w: %v", errInvalidWAV, err)
			}
			seenFormat = true

		case "data":
			if !seenFormat {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", errInvalidWAV)
			}
			size := int(chunk.Size)
			if size > r.Len() {
				size = r.Len()
			}
			pcm := make([]byte, size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return nil, fmt.Errorf("%w: %v", errInvalidWAV, err)
			}
			return pcm, nil

		default:
			if _, err := r.Seek(int64(chunk.Size+chunk.Size%2), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("%w: %v", errInvalidWAV, err)
			}
		}
	}
}

func sanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
	if name == "" {
		return "speaker"
	}
	return strings.ToLower(name)
}
