package wire

import "testing"

func TestCalculateCRC_Empty(t *testing.T) {
	if got := CalculateCRC([]byte{}); got != crcInitial {
		t.Errorf("CRC of empty data should be the initial value, got 0x%04X", got)
	}
}

func TestCalculateCRC_KnownValue(t *testing.T) {
	got := CalculateCRC([]byte("123456789"))
	const want = 0x29B1 // standard CRC-16-CCITT check value
	if got != want {
		t.Errorf("CRC mismatch: want 0x%04X, got 0x%04X", want, got)
	}
}

func TestCalculateCRC_Deterministic(t *testing.T) {
	data := []byte{0x10, 0x30, 0x01, 0x02, 0x03, 0x04}
	if CalculateCRC(data) != CalculateCRC(data) {
		t.Error("CRC should be deterministic")
	}
}
