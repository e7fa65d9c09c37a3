package audio

import (
	"bytes"
	"io"
	"testing"
)

func TestEncodeDecodeWAVRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	wav, err := EncodeWAVPCM16LE(pcm, 22050)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	format, data, err := DecodeWAVHeader(bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("DecodeWAVHeader() error = %v", err)
	}
	if format.SampleRate != 22050 || format.Channels != 1 || format.BitsPerSample != 16 {
		t.Fatalf("format = %+v", format)
	}

	got, err := io.ReadAll(data)
	if err != nil {
		t.Fatalf("read pcm: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("pcm = %v, want %v", got, pcm)
	}
}

func TestDecodeWAVHeaderRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAVHeader(bytes.NewReader([]byte("not a wav stream"))); err == nil {
		t.Fatalf("garbage input should fail")
	}
}

func TestFormatBytesPerSecond(t *testing.T) {
	if got := DefaultFormat.BytesPerSecond(); got != 32000 {
		t.Fatalf("BytesPerSecond() = %d, want 32000", got)
	}
}
