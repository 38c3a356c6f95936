package services

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamvax-labs/scamvax_api/shared"
)

func newTestAudioService() *AudioService {
	return &AudioService{
		maxSizeMB:   10,
		minDuration: 10.0,
		maxDuration: 20.0,
	}
}

// makeWAV builds a minimal PCM16 mono RIFF file of the given duration.
func makeWAV(seconds float64) []byte {
	const sampleRate = 24000
	const byteRate = sampleRate * 2
	dataSize := uint32(seconds * byteRate)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(2))  // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16)) // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))

	return buf.Bytes()
}

func TestSniffAudioFormat(t *testing.T) {
	pad := func(head []byte) []byte {
		return append(head, make([]byte, 16)...)
	}

	cases := []struct {
		name string
		raw  []byte
		want string
	}{
		{"wav", makeWAV(1), "wav"},
		{"mp3 id3", pad([]byte("ID3\x04\x00")), "mp3"},
		{"mp3 frame sync", pad([]byte{0xFF, 0xFB, 0x90}), "mp3"},
		{"m4a", pad([]byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p'}), "m4a"},
		{"ogg", pad([]byte("OggS\x00")), "ogg"},
		{"flac", pad([]byte("fLaC\x00")), "flac"},
		{"webm", pad([]byte{0x1A, 0x45, 0xDF, 0xA3}), "webm"},
		{"text", pad([]byte("hello world, this is not audio")), ""},
		{"too short", []byte("RIFF"), ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sniffAudioFormat(tc.raw))
		})
	}
}

func TestWavDurationSeconds(t *testing.T) {
	dur, ok := wavDurationSeconds(makeWAV(12))
	require.True(t, ok)
	assert.InDelta(t, 12.0, dur, 0.01)

	_, ok = wavDurationSeconds([]byte("RIFF....WAVEgarbage"))
	assert.False(t, ok)
}

func TestNormalizeAcceptsValidWav(t *testing.T) {
	svc := newTestAudioService()

	raw := makeWAV(12)
	out, err := svc.Normalize(raw, "voice.wav", "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestNormalizeRejectsTooLarge(t *testing.T) {
	svc := newTestAudioService()
	svc.maxSizeMB = 1

	raw := make([]byte, 2*1024*1024)
	_, err := svc.Normalize(raw, "big.wav", "audio/wav")
	assert.Equal(t, shared.ErrCodeFileTooLarge, errorCode(t, err))
}

func TestNormalizeRejectsTooShort(t *testing.T) {
	svc := newTestAudioService()

	_, err := svc.Normalize([]byte("RIFF tiny"), "tiny.wav", "audio/wav")
	assert.Equal(t, shared.ErrCodeAudioTooShort, errorCode(t, err))
}

func TestNormalizeRejectsUnknownContainer(t *testing.T) {
	svc := newTestAudioService()

	raw := bytes.Repeat([]byte("notaudio"), 200)
	_, err := svc.Normalize(raw, "file.bin", "application/octet-stream")
	assert.Equal(t, shared.ErrCodeAudioUnsupported, errorCode(t, err))
}

func TestNormalizeRejectsDurationOutOfRange(t *testing.T) {
	svc := newTestAudioService()

	_, err := svc.Normalize(makeWAV(5), "short.wav", "audio/wav")
	assert.Equal(t, shared.ErrCodeAudioDuration, errorCode(t, err))

	_, err = svc.Normalize(makeWAV(25), "long.wav", "audio/wav")
	assert.Equal(t, shared.ErrCodeAudioDuration, errorCode(t, err))
}
