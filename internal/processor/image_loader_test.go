package processor

import (
	"testing"

	"github.com/adverant/nexus/juxtapose-worker/internal/errors"
)

func TestDetectImageExtension(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, ".png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, ".jpg"},
		{"gif", []byte("GIF89a.."), ".gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), ".webp"},
		{"tiff", []byte{0x49, 0x49, 0x2A, 0x00}, ".tif"},
		{"jpeg 2000", []byte{0x00, 0x00, 0x00, 0x0C, 0x6A, 0x50, 0x20, 0x20}, ".jp2"},
		{"pdf", []byte("%PDF-1.7"), ".pdf"},
		{"bmp", []byte("BM\x00\x00"), ".bmp"},
		{"short", []byte("BM"), ""},
		{"text", []byte("hello"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectImageExtension(tt.data); got != tt.want {
				t.Fatalf("DetectImageExtension() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckImageExtension(t *testing.T) {
	for _, ok := range []string{"a.png", "b.JPG", "c.jpeg", "d.webp", "e.tiff", "upload"} {
		if err := CheckImageExtension(ok); err != nil {
			t.Fatalf("CheckImageExtension(%q) error = %v", ok, err)
		}
	}
	for _, bad := range []string{"a.jp2", "b.pdf", "c.txt"} {
		if err := CheckImageExtension(bad); !errors.HasCode(err, errors.ErrorUnsupportedFormat) {
			t.Fatalf("CheckImageExtension(%q): expected UNSUPPORTED_FORMAT, got %v", bad, err)
		}
	}
}
