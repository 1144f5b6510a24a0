package oggvorbis

import "testing"

func TestBatchSamplesIs64KiBOfS16Stereo(t *testing.T) {
	const wantBytes = 64 * 1024
	if batchSamples*2 != wantBytes {
		t.Fatalf("batchSamples*2 = %d, want %d (64 KiB of S16 samples)", batchSamples*2, wantBytes)
	}
}

func TestNewRejectsNonOggData(t *testing.T) {
	if _, err := New([]byte("not an ogg file")); err == nil {
		t.Fatal("expected an error for non-Ogg input")
	}
}
