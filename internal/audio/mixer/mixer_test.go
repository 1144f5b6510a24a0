package mixer

import (
	"testing"

	"rlvm/internal/audio/format"
	"rlvm/internal/audio/player"
)

type fakeDevice struct {
	queued [][]float64
}

func (d *fakeDevice) QueueAudio(samples []float64) error {
	d.queued = append(d.queued, append([]float64(nil), samples...))
	return nil
}

func (d *fakeDevice) QueuedBytes() int {
	total := 0
	for _, q := range d.queued {
		total += len(q)
	}
	return total
}

type constDecoder struct {
	spec    format.AVSpec
	value   float64
	emitted bool
}

func (d *constDecoder) Name() string        { return "const" }
func (d *constDecoder) Spec() format.AVSpec { return d.spec }
func (d *constDecoder) HasNext() bool       { return !d.emitted }
func (d *constDecoder) DecodeNext() (format.AudioData, error) {
	d.emitted = true
	samples := make([]float64, 4)
	for i := range samples {
		samples[i] = d.value
	}
	return format.AudioData{Spec: d.spec, Samples: samples}, nil
}
func (d *constDecoder) DecodeAll() (format.AudioData, error) { return d.DecodeNext() }
func (d *constDecoder) Seek(offset int64, whence format.SeekWhence) error {
	d.emitted = false
	return nil
}

func TestWavPlayAndExecuteMixesIntoDevice(t *testing.T) {
	dev := &fakeDevice{}
	s := New(dev)
	spec := format.AVSpec{SampleRate: 44100, SampleFormat: format.FormatS16, ChannelCount: 2}
	if err := s.WavPlay(0, &constDecoder{spec: spec, value: 100}, true); err != nil {
		t.Fatalf("WavPlay: %v", err)
	}
	if err := s.ExecuteSoundSystem(4); err != nil {
		t.Fatalf("ExecuteSoundSystem: %v", err)
	}
	if len(dev.queued) != 1 || len(dev.queued[0]) != 4 {
		t.Fatalf("expected one queued frame of 4 samples, got %v", dev.queued)
	}
	for _, v := range dev.queued[0] {
		if v != 100 {
			t.Errorf("expected full-volume mix of 100, got %v", v)
		}
	}
}

func TestSetChannelVolumeAttenuatesMix(t *testing.T) {
	dev := &fakeDevice{}
	s := New(dev)
	spec := format.AVSpec{SampleRate: 44100, SampleFormat: format.FormatS16, ChannelCount: 2}
	if err := s.WavPlay(0, &constDecoder{spec: spec, value: 200}, true); err != nil {
		t.Fatalf("WavPlay: %v", err)
	}
	if err := s.SetChannelVolume(0, 128); err != nil {
		t.Fatalf("SetChannelVolume: %v", err)
	}
	if err := s.ExecuteSoundSystem(4); err != nil {
		t.Fatalf("ExecuteSoundSystem: %v", err)
	}
	want := 200.0 * 128.0 * 255.0 / (255.0 * 255.0)
	if dev.queued[0][0] != want {
		t.Errorf("got %v, want %v", dev.queued[0][0], want)
	}
}

func TestWavStopAllTerminatesBaseAndExtraChannels(t *testing.T) {
	dev := &fakeDevice{}
	s := New(dev)
	spec := format.AVSpec{SampleRate: 44100, SampleFormat: format.FormatS16, ChannelCount: 2}
	if err := s.BgmPlay(&constDecoder{spec: spec, value: 1}, true); err != nil {
		t.Fatalf("BgmPlay: %v", err)
	}
	if err := s.WavPlay(1, &constDecoder{spec: spec, value: 1}, true); err != nil {
		t.Fatalf("WavPlay: %v", err)
	}
	s.WavStopAll()
	if s.BgmStatus() != player.StatusTerminated {
		t.Fatalf("expected WavStopAll to also terminate BGM, got %v", s.BgmStatus())
	}
	if s.channels[1].p.Status() != player.StatusTerminated {
		t.Fatal("expected wavplay channel 1 terminated by WavStopAll")
	}
}

func TestPlaySeLooksUpSeTableAndLoads(t *testing.T) {
	dev := &fakeDevice{}
	s := New(dev)
	s.SetSeTable(map[int]SeEntry{7: {File: "se07.wav", Channel: 2}})
	spec := format.AVSpec{SampleRate: 22050, SampleFormat: format.FormatS16, ChannelCount: 1}
	var loadedFile string
	err := s.PlaySe(7, func(file string) (PlayerDecoder, error) {
		loadedFile = file
		return &constDecoder{spec: spec, value: 1}, nil
	})
	if err != nil {
		t.Fatalf("PlaySe: %v", err)
	}
	if loadedFile != "se07.wav" {
		t.Fatalf("expected se07.wav to be loaded, got %q", loadedFile)
	}
	if s.channels[2].p == nil {
		t.Fatal("expected channel 2 to have a player installed")
	}
}

func TestKoePlayRespectsPerCharacterDisable(t *testing.T) {
	dev := &fakeDevice{}
	s := New(dev)
	s.SetKoeEnabled(5, false)
	spec := format.AVSpec{SampleRate: 22050, SampleFormat: format.FormatS16, ChannelCount: 1}
	called := false
	err := s.KoePlay(100003, 5, func(fileNo, index int) (PlayerDecoder, error) {
		called = true
		return &constDecoder{spec: spec, value: 1}, nil
	})
	if err != nil {
		t.Fatalf("KoePlay: %v", err)
	}
	if called {
		t.Fatal("expected KoePlay to skip loading for a disabled character")
	}
	if s.channels[KoeChannel].p != nil {
		t.Fatal("expected koe channel untouched when character is disabled")
	}
}

func TestKoeChannelIsLastChannel(t *testing.T) {
	if KoeChannel != NumChannels-1 {
		t.Fatalf("KoeChannel = %d, want %d", KoeChannel, NumChannels-1)
	}
	if NumChannels != 25 {
		t.Fatalf("NumChannels = %d, want 25", NumChannels)
	}
}
