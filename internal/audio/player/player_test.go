package player

import (
	"rlvm/internal/audio/format"
	"testing"
)

// fakeDecoder is a minimal in-memory format.Decoder for exercising Player
// without a real codec: DecodeNext hands back the whole remaining buffer in
// one shot and Seek(0, BEG) rewinds.
type fakeDecoder struct {
	spec    format.AVSpec
	samples []float64
	pos     int
}

func (d *fakeDecoder) Name() string        { return "fake" }
func (d *fakeDecoder) Spec() format.AVSpec { return d.spec }
func (d *fakeDecoder) HasNext() bool       { return d.pos < len(d.samples) }

func (d *fakeDecoder) DecodeNext() (format.AudioData, error) {
	chunk := d.samples[d.pos:]
	d.pos = len(d.samples)
	return format.AudioData{Spec: d.spec, Samples: append([]float64(nil), chunk...)}, nil
}

func (d *fakeDecoder) DecodeAll() (format.AudioData, error) {
	return d.DecodeNext()
}

func (d *fakeDecoder) Seek(offset int64, whence format.SeekWhence) error {
	d.pos = 0
	return nil
}

func newToneDecoder(n int) *fakeDecoder {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = float64(i)
	}
	return &fakeDecoder{
		spec:    format.AVSpec{SampleRate: 44100, SampleFormat: format.FormatS16, ChannelCount: 2},
		samples: samples,
	}
}

func TestLoadPCMLoopsAndReturnsExactSampleCount(t *testing.T) {
	const total = 8820 * 2 // 0.2s stereo 440Hz @ 44100Hz = 8820 frames, 17640 samples
	dec := newToneDecoder(total)
	p := New(dec)
	p.SetLoop(0, nil)

	n := total * 3 / 2 // 26460
	out, err := p.LoadPCM(n)
	if err != nil {
		t.Fatalf("LoadPCM: %v", err)
	}
	if len(out.Samples) != n {
		t.Fatalf("LoadPCM returned %d samples, want %d", len(out.Samples), n)
	}
	if p.Status() != StatusPlaying {
		t.Fatalf("expected player still playing, got status %v", p.Status())
	}
	for i := 0; i < total; i++ {
		if out.Samples[i] != float64(i) {
			t.Fatalf("sample %d = %v, want %v (first pass)", i, out.Samples[i], float64(i))
		}
	}
	for i := total; i < n; i++ {
		want := float64(i - total)
		if out.Samples[i] != want {
			t.Fatalf("sample %d = %v, want %v (looped pass)", i, out.Samples[i], want)
		}
	}
}

func TestLoadPCMTerminatesAndPadsSilenceWithoutLoop(t *testing.T) {
	dec := &fakeDecoder{
		spec:    format.AVSpec{SampleRate: 8000, SampleFormat: format.FormatS16, ChannelCount: 1},
		samples: []float64{1, 2, 3},
	}
	p := New(dec)

	out, err := p.LoadPCM(6)
	if err != nil {
		t.Fatalf("LoadPCM: %v", err)
	}
	if len(out.Samples) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(out.Samples))
	}
	want := []float64{1, 2, 3, 0, 0, 0}
	for i, w := range want {
		if out.Samples[i] != w {
			t.Errorf("sample %d = %v, want %v", i, out.Samples[i], w)
		}
	}
	if p.Status() != StatusTerminated {
		t.Fatalf("expected player terminated after running out of data, got %v", p.Status())
	}
}

func TestLoadPCMDrainsPendingOverflowFirst(t *testing.T) {
	dec := &fakeDecoder{
		spec:    format.AVSpec{SampleRate: 8000, SampleFormat: format.FormatS16, ChannelCount: 1},
		samples: []float64{1, 2, 3, 4, 5, 6},
	}
	p := New(dec)
	p.SetLoop(0, nil)

	first, err := p.LoadPCM(4)
	if err != nil {
		t.Fatalf("LoadPCM: %v", err)
	}
	if len(first.Samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(first.Samples))
	}
	second, err := p.LoadPCM(2)
	if err != nil {
		t.Fatalf("LoadPCM: %v", err)
	}
	want := []float64{5, 6}
	for i, w := range want {
		if second.Samples[i] != w {
			t.Errorf("pending-drained sample %d = %v, want %v", i, second.Samples[i], w)
		}
	}
}

func TestFadeOutTerminatesAfterRamp(t *testing.T) {
	dec := &fakeDecoder{
		spec:    format.AVSpec{SampleRate: 1000, SampleFormat: format.FormatS16, ChannelCount: 1},
		samples: []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10},
	}
	p := New(dec)
	p.FadeOut(4, true) // 4ms * 1000Hz * 1ch / 1000 = 4 samples

	out, err := p.LoadPCM(10)
	if err != nil {
		t.Fatalf("LoadPCM: %v", err)
	}
	if len(out.Samples) != 10 {
		t.Fatalf("expected LoadPCM to still return the requested 10 samples (silence-padded), got %d", len(out.Samples))
	}
	if p.Status() != StatusTerminated {
		t.Fatal("expected player terminated once the fade-out ramp completed")
	}
	if out.Samples[0] != 10 {
		t.Errorf("expected first ramp sample at full volume, got %v", out.Samples[0])
	}
	if out.Samples[3] != 2.5 {
		t.Errorf("expected last ramp sample at 1/4 volume (2.5), got %v", out.Samples[3])
	}
	for i := 4; i < 10; i++ {
		if out.Samples[i] != 0 {
			t.Errorf("sample %d = %v, want 0 (silence padding after termination)", i, out.Samples[i])
		}
	}
}

func TestSetLoopTimesTerminatesAfterNWraps(t *testing.T) {
	dec := &fakeDecoder{
		spec:    format.AVSpec{SampleRate: 1000, SampleFormat: format.FormatS16, ChannelCount: 1},
		samples: []float64{1, 2},
	}
	p := New(dec)
	p.SetLoop(0, nil)
	p.SetLoopTimes(1) // terminate after the first wrap

	out, err := p.LoadPCM(8)
	if err != nil {
		t.Fatalf("LoadPCM: %v", err)
	}
	if p.Status() != StatusTerminated {
		t.Fatal("expected player terminated after one configured loop")
	}
	if len(out.Samples) != 8 {
		t.Fatalf("expected silence padding to fill the request, got %d samples", len(out.Samples))
	}
}
