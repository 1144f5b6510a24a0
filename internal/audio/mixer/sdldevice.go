package mixer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/veandco/go-sdl2/sdl"
)

// SDLDevice is the real audio output backend, grounded on
// internal/ui/ui.go's sdl.OpenAudioDevice/sdl.QueueAudio pairing: AUDIO_F32
// stereo, queue-size capped to bound latency, converted by hand from the
// mixer's float64 samples rather than via unsafe.Pointer reinterpretation.
type SDLDevice struct {
	dev          sdl.AudioDeviceID
	maxQueued    uint32
}

// OpenSDLDevice opens the default output device at the given sample rate,
// stereo AUDIO_F32, with a queue buffer sized for bufferFrames interleaved
// stereo samples.
func OpenSDLDevice(sampleRate int, bufferFrames int) (*SDLDevice, error) {
	if err := sdl.InitSubSystem(sdl.INIT_AUDIO); err != nil {
		return nil, fmt.Errorf("mixer: sdl audio init: %w", err)
	}
	spec := sdl.AudioSpec{
		Freq:     int32(sampleRate),
		Format:   sdl.AUDIO_F32,
		Channels: 2,
		Samples:  uint16(bufferFrames),
	}
	dev, err := sdl.OpenAudioDevice("", false, &spec, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("mixer: open audio device: %w", err)
	}
	sdl.PauseAudioDevice(dev, false)
	return &SDLDevice{
		dev:       dev,
		maxQueued: uint32(bufferFrames * 2 * 4 * 2), // ~2 frames worth, stereo float32
	}, nil
}

// QueueAudio converts mixed float64 samples to little-endian float32 bytes
// and queues them, dropping the frame if the device's queue is already
// backed up past maxQueued (mirrors the emulator UI's own backpressure
// rule: better to drop a frame than to accumulate latency).
func (d *SDLDevice) QueueAudio(samples []float64) error {
	if sdl.GetQueuedAudioSize(d.dev) >= d.maxQueued {
		return nil
	}
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		bits := math.Float32bits(float32(s))
		binary.LittleEndian.PutUint32(buf[i*4:], bits)
	}
	return sdl.QueueAudio(d.dev, buf)
}

func (d *SDLDevice) QueuedBytes() int {
	return int(sdl.GetQueuedAudioSize(d.dev))
}

// Close stops playback and releases the device.
func (d *SDLDevice) Close() {
	sdl.CloseAudioDevice(d.dev)
}
