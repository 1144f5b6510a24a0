package nwa

import (
	"encoding/binary"
	"testing"
)

func makeHeader(mode int32, channels, bits uint16, sampleRate uint32) []byte {
	h := make([]byte, headerSize)
	le := binary.LittleEndian
	le.PutUint16(h[0:2], channels)
	le.PutUint16(h[2:4], bits)
	le.PutUint32(h[4:8], sampleRate)
	le.PutUint32(h[8:12], uint32(mode))
	return h
}

func TestDecodeHQUncompressedRoundTrip(t *testing.T) {
	samples := []int16{100, -200, 300, -32768, 32767, 0}
	raw := makeHeader(-1, 1, 16, 44100)
	for _, s := range samples {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(s))
		raw = append(raw, b...)
	}

	dec, err := New(raw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !dec.HasNext() {
		t.Fatal("expected HasNext true before any decode")
	}
	got, err := dec.DecodeAll()
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(got.Samples) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(got.Samples))
	}
	for i, s := range samples {
		if got.Samples[i] != float64(s) {
			t.Errorf("sample %d: got %v, want %v", i, got.Samples[i], s)
		}
	}
	if dec.HasNext() {
		t.Fatal("expected HasNext false after DecodeAll")
	}
}

func TestSeekRewindsHQDecoder(t *testing.T) {
	raw := makeHeader(-1, 1, 16, 22050)
	raw = append(raw, 1, 0, 2, 0, 3, 0)
	dec, err := New(raw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first, _ := dec.DecodeAll()
	if err := dec.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	second, err := dec.DecodeAll()
	if err != nil {
		t.Fatalf("DecodeAll after seek: %v", err)
	}
	if len(first.Samples) != len(second.Samples) {
		t.Fatalf("sample counts differ after rewind")
	}
}

func TestHeaderRejectsShortFile(t *testing.T) {
	if _, err := New(make([]byte, 10)); err == nil {
		t.Fatal("expected error for a file shorter than the header")
	}
}

func TestDeltaParamsMatchesSpecFormulas(t *testing.T) {
	cases := []struct {
		tag, comp, wantBits, wantShift int
	}{
		{1, 0, 5, 3},
		{6, 0, 5, 8},
		{1, 2, 3, 5},
		{1, 3, 6, 2},
		{6, 5, 8, 7},
	}
	for _, c := range cases {
		bits, shift := deltaParams(c.tag, c.comp)
		if bits != c.wantBits || shift != c.wantShift {
			t.Errorf("deltaParams(%d,%d) = (%d,%d), want (%d,%d)", c.tag, c.comp, bits, shift, c.wantBits, c.wantShift)
		}
	}
}

func TestEscapeParamsMatchesSpecFormulas(t *testing.T) {
	if bits, shift := escapeParams(0); bits != 8 || shift != 9 {
		t.Errorf("escapeParams(0) = (%d,%d), want (8,9)", bits, shift)
	}
	if bits, shift := escapeParams(2); bits != 6 || shift != 11 {
		t.Errorf("escapeParams(2) = (%d,%d), want (6,11)", bits, shift)
	}
	if bits, shift := escapeParams(4); bits != 8 || shift != 9 {
		t.Errorf("escapeParams(4) = (%d,%d), want (8,9)", bits, shift)
	}
}

func TestClipS16SaturatesAtBounds(t *testing.T) {
	if clipS16(40000) != 32767 {
		t.Error("expected positive clip to 32767")
	}
	if clipS16(-40000) != -32768 {
		t.Error("expected negative clip to -32768")
	}
	if clipS16(5) != 5 {
		t.Error("expected in-range value to pass through unchanged")
	}
}

func TestDecodeRunLengthSingleBitStop(t *testing.T) {
	br := newBitReader([]byte{0x00})
	count, err := decodeRunLength(br)
	if err != nil {
		t.Fatalf("decodeRunLength: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected run length 0 for a 0 bit (matches NwaCompDecoder::DecodeUnit's zeros=Popbits(1) replace-not-add semantics), got %d", count)
	}
}

func TestDecodeRunLengthTwoBitExtension(t *testing.T) {
	// bit0 = 1 (continue), next 2 bits = value 1 (not the 0b11 escape).
	br := newBitReader(packLSBBits(1, 1, 0))
	count, err := decodeRunLength(br)
	if err != nil {
		t.Fatalf("decodeRunLength: %v", err)
	}
	if count != 1 { // the 2-bit value (1) replaces the count outright
		t.Fatalf("expected run length 1, got %d", count)
	}
}

func TestDecodeRunLengthEightBitExtension(t *testing.T) {
	// bit0 = 1, next 2 bits = 11 (escape), next 8 bits = the final count
	// (42 = 0b00101010, LSB-first: 0,1,0,1,0,1,0,0).
	br := newBitReader(packLSBBits(1, 1, 1, 0, 1, 0, 1, 0, 1, 0, 0))
	count, err := decodeRunLength(br)
	if err != nil {
		t.Fatalf("decodeRunLength: %v", err)
	}
	if count != 42 {
		t.Fatalf("expected run length 42, got %d", count)
	}
}

func TestPopSignMagnitudeTakesTopBitAsSign(t *testing.T) {
	// 4-bit window, popped in order 1,1,0,1: the last-popped bit (1) is the
	// sign (negative); the first three popped bits (1,1,0 -> magnitude 3)
	// are the magnitude.
	br := newBitReader(packLSBBits(1, 1, 0, 1))
	v, err := br.popSignMagnitude(4)
	if err != nil {
		t.Fatalf("popSignMagnitude: %v", err)
	}
	if v != -3 {
		t.Fatalf("expected -3 (sign bit set, magnitude 3), got %d", v)
	}
}

func TestPopSignMagnitudePositive(t *testing.T) {
	// 4-bit window, popped in order 1,0,1,0: last-popped bit (0) clear, so
	// positive; magnitude from the first three popped bits (1,0,1 -> 5).
	br := newBitReader(packLSBBits(1, 0, 1, 0))
	v, err := br.popSignMagnitude(4)
	if err != nil {
		t.Fatalf("popSignMagnitude: %v", err)
	}
	if v != 5 {
		t.Fatalf("expected 5, got %d", v)
	}
}

// packLSBBits packs a list of 0/1 bits, in popBits order (first element is
// the first bit that will be popped), into a byte slice — bit i of the
// stream lands in bit (i%8) of byte (i/8), matching bitReader's convention.
func packLSBBits(bits ...int) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b != 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}
