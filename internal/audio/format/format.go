// Package format holds the codec-agnostic audio value types shared by every
// decoder and by the player: sample formats, stream specs, and decoded PCM
// buffers. Generalized from the teacher's fixed-point waveform model
// (internal/apu/fixed_point.go) to the runtime's typed-buffer AudioData,
// modeled directly on the source's base/avspec.h (AV_SAMPLE_FMT, AVSpec,
// AudioData).
package format

import "fmt"

// SampleFormat is the element type of an AudioData buffer.
type SampleFormat int

const (
	FormatNone SampleFormat = iota
	FormatU8
	FormatS8
	FormatS16
	FormatS32
	FormatS64
	FormatFloat
	FormatDouble
)

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "U8"
	case FormatS8:
		return "S8"
	case FormatS16:
		return "S16"
	case FormatS32:
		return "S32"
	case FormatS64:
		return "S64"
	case FormatFloat:
		return "FLT"
	case FormatDouble:
		return "DBL"
	default:
		return "NONE"
	}
}

// BytesPerSample is the on-the-wire width of one sample in this format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatU8, FormatS8:
		return 1
	case FormatS16:
		return 2
	case FormatS32, FormatFloat:
		return 4
	case FormatS64, FormatDouble:
		return 8
	default:
		return 0
	}
}

// Silence is the buffer-fill value for padding: 0 for signed formats, the
// mid-range value for unsigned ones (spec §4.8's padding rule).
func (f SampleFormat) Silence() float64 {
	if f == FormatU8 {
		return 128
	}
	return 0
}

// AVSpec is the stream-level description attached to every AudioData and
// carried unchanged through the player (source: base/avspec.h's AVSpec).
type AVSpec struct {
	SampleRate   int
	SampleFormat SampleFormat
	ChannelCount int
}

func (s AVSpec) String() string {
	return fmt.Sprintf("AVSpec{rate=%d, fmt=%s, channels=%d}", s.SampleRate, s.SampleFormat, s.ChannelCount)
}

// AudioData is a decoded PCM buffer tagged with the spec it was produced
// against. Samples is always float64 internally regardless of the nominal
// on-wire SampleFormat — decoders normalize on decode, and encoders quantize
// back down on write. This keeps every mixing/fade/volume computation in one
// representation instead of branching per wire width at every call site.
type AudioData struct {
	Spec    AVSpec
	Samples []float64
}

// SampleCount is the buffer length; frame count is SampleCount/ChannelCount.
func (d AudioData) SampleCount() int { return len(d.Samples) }

// FrameCount is the number of multi-channel frames in the buffer.
func (d AudioData) FrameCount() int {
	if d.Spec.ChannelCount == 0 {
		return 0
	}
	return len(d.Samples) / d.Spec.ChannelCount
}

// AudioFrame is a decoded chunk tagged with the absolute PCM sample position
// (not byte position) it starts at, per spec §3's AudioFrame definition.
type AudioFrame struct {
	Data AudioData
	Cur  int64
}

// SampleCount is the number of interleaved samples in this frame.
func (f AudioFrame) SampleCount() int { return f.Data.SampleCount() }

// Slice returns the sub-frame covering samples [start, end), with Cur
// advanced to reflect the new starting position.
func (f AudioFrame) Slice(start, end int) AudioFrame {
	return AudioFrame{
		Data: AudioData{Spec: f.Data.Spec, Samples: f.Data.Samples[start:end]},
		Cur:  f.Cur + int64(start),
	}
}
