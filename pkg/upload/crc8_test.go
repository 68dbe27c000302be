package upload

import "testing"

// Reference values for CRC-8/LTE (poly 0x9B, init 0x00, no reflection):
// the "123456789" check value is the one published for this variant.
func TestChecksumKnownValues(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"check string", []byte("123456789"), 0xEA},
		{"empty", nil, 0x00},
		{"single zero byte", []byte{0x00}, 0x00},
		{"single 0xFF", []byte{0xFF}, 0x7B},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Fatalf("Checksum(%q) = %#02x, want %#02x", tt.data, got, tt.want)
			}
		})
	}
}
