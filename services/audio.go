package services

import (
	"bytes"
	"encoding/binary"
	"os"
	"strconv"
	"strings"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/scamvax-labs/scamvax_api/shared"
)

// AudioTranscoder validates an uploaded recording and hands back bytes the
// synthesizer provider accepts.
type AudioTranscoder interface {
	Normalize(raw []byte, filenameHint, mimeHint string) ([]byte, error)
}

type AudioService struct {
	context.DefaultService

	maxSizeMB   int
	minDuration float64
	maxDuration float64
}

const AUDIO_SVC = "audio_svc"

const minAudioBytes = 1000

func (svc AudioService) Id() string {
	return AUDIO_SVC
}

func (svc *AudioService) Configure(ctx *context.Context) error {
	svc.maxSizeMB = envInt("AUDIO_MAX_SIZE_MB", 10)
	svc.minDuration = envFloat("AUDIO_MIN_DURATION_S", 10.0)
	svc.maxDuration = envFloat("AUDIO_MAX_DURATION_S", 20.0)

	return svc.DefaultService.Configure(ctx)
}

func (svc *AudioService) Start() error {
	return nil
}

func (svc *AudioService) MaxSizeBytes() int64 {
	return int64(svc.maxSizeMB) * 1024 * 1024
}

func (svc *AudioService) MaxSizeMB() int {
	return svc.maxSizeMB
}

// Normalize checks size, container and duration bounds. The provider
// consumes the source container directly, so the payload passes through
// untouched once it validates.
func (svc *AudioService) Normalize(raw []byte, filenameHint, mimeHint string) ([]byte, error) {
	if int64(len(raw)) > svc.MaxSizeBytes() {
		return nil, shared.NewFileTooLargeError(svc.maxSizeMB)
	}
	if len(raw) < minAudioBytes {
		return nil, shared.NewValidationError(nil, shared.ErrCodeAudioTooShort, "Audio file is too short")
	}

	format := sniffAudioFormat(raw)
	if format == "" {
		log.WithFields(log.Fields{
			"filename": filenameHint,
			"mime":     mimeHint,
		}).Warn("Unrecognized audio container")
		return nil, shared.NewValidationError(nil, shared.ErrCodeAudioUnsupported, "Unsupported audio format. Supported: WAV, MP3, M4A, AAC, OGG, FLAC, WEBM")
	}

	// Duration bounds are only checkable for WAV without decoding, other
	// containers are bounded by the size cap and rejected upstream by the
	// provider when unusable.
	if format == "wav" {
		dur, ok := wavDurationSeconds(raw)
		if ok && (dur < svc.minDuration || dur > svc.maxDuration) {
			return nil, shared.NewValidationError(nil, shared.ErrCodeAudioDuration,
				"Recording must be between "+strconv.FormatFloat(svc.minDuration, 'f', 0, 64)+
					" and "+strconv.FormatFloat(svc.maxDuration, 'f', 0, 64)+" seconds")
		}
	}

	return raw, nil
}

func sniffAudioFormat(raw []byte) string {
	if len(raw) < 12 {
		return ""
	}

	switch {
	case bytes.HasPrefix(raw, []byte("RIFF")) && bytes.Equal(raw[8:12], []byte("WAVE")):
		return "wav"
	case bytes.HasPrefix(raw, []byte("ID3")), raw[0] == 0xFF && raw[1]&0xE0 == 0xE0:
		return "mp3"
	case bytes.Equal(raw[4:8], []byte("ftyp")):
		return "m4a"
	case bytes.HasPrefix(raw, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(raw, []byte("fLaC")):
		return "flac"
	case bytes.HasPrefix(raw, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "webm"
	}
	return ""
}

// wavDurationSeconds walks the RIFF chunks for fmt and data. Returns false
// when the header is malformed rather than failing the upload.
func wavDurationSeconds(raw []byte) (float64, bool) {
	var byteRate uint32
	var dataSize uint32

	pos := 12
	for pos+8 <= len(raw) {
		chunkID := string(raw[pos : pos+4])
		chunkSize := binary.LittleEndian.Uint32(raw[pos+4 : pos+8])

		switch chunkID {
		case "fmt ":
			if pos+20 > len(raw) {
				return 0, false
			}
			byteRate = binary.LittleEndian.Uint32(raw[pos+16 : pos+20])
		case "data":
			dataSize = chunkSize
		}

		if byteRate > 0 && dataSize > 0 {
			return float64(dataSize) / float64(byteRate), true
		}

		pos += 8 + int(chunkSize)
		if chunkSize%2 == 1 {
			pos++
		}
	}
	return 0, false
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}
