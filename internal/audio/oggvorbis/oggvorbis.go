// Package oggvorbis is a thin adapter over github.com/xlab/vorbis-go's
// channel-based decoder (see vendor decoder.Decoder in the vorbis-go
// package), exposing the same DecodeNext/DecodeAll/Seek surface as every
// other codec in this module. Modeled on the source's OggDecoder
// (base/avdec/ogg.cc / ogg.h): decode fully once, then serve fixed-size
// batches and a rewind-to-start Seek from the buffered PCM.
package oggvorbis

import (
	"bytes"

	vorbisdec "github.com/xlab/vorbis-go/decoder"

	"rlvm/internal/audio/format"
	"rlvm/internal/rlerr"
)

// batchSamples is 64 KiB worth of interleaved S16 samples (spec §4.7:
// "chunked DecodeNext (64 KiB PCM batches, S16 stereo)").
const batchSamples = 64 * 1024 / 2

const vorbisSamplesPerChannel = 4096

// Decoder decodes an entire Ogg/Vorbis stream up front (the vorbis-go
// decoder has no incremental re-seek support beyond full re-decode) and
// serves it out in fixed batches. Seek(0, BEG) just resets the read cursor
// over the already-decoded buffer, which is what makes two DecodeAll
// passes bit-identical without re-touching the decoder.
type Decoder struct {
	spec    format.AVSpec
	samples []float64
	pos     int
}

// New decodes data (a complete .ogg file) and returns a ready decoder.
func New(data []byte) (*Decoder, error) {
	spec, samples, err := decodeFull(data)
	if err != nil {
		return nil, err
	}
	return &Decoder{spec: spec, samples: samples}, nil
}

func (d *Decoder) Name() string          { return "OggDecoder" }
func (d *Decoder) Spec() format.AVSpec   { return d.spec }
func (d *Decoder) HasNext() bool         { return d.pos < len(d.samples) }

func (d *Decoder) DecodeNext() (format.AudioData, error) {
	if !d.HasNext() {
		return format.AudioData{}, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "OggDecoder: no more data to decode")
	}
	end := d.pos + batchSamples
	if end > len(d.samples) {
		end = len(d.samples)
	}
	batch := append([]float64(nil), d.samples[d.pos:end]...)
	d.pos = end
	return format.AudioData{Spec: d.spec, Samples: batch}, nil
}

func (d *Decoder) DecodeAll() (format.AudioData, error) {
	return format.ConcatAll(d)
}

func (d *Decoder) Seek(offset int64, whence format.SeekWhence) error {
	if whence != format.SeekBeg || offset != 0 {
		return rlerr.New(rlerr.KindInvalidArgument, rlerr.StageCodec, "OggDecoder: only Seek(0, BEG) is supported")
	}
	d.pos = 0
	return nil
}

// decodeFull runs vorbis-go's channel-based decode loop to completion and
// flattens the resulting per-channel float32 frames into one interleaved
// float64 buffer scaled to signed-16-bit range, matching this package's
// S16-stereo contract.
func decodeFull(data []byte) (format.AVSpec, []float64, error) {
	dec, err := vorbisdec.New(bytes.NewReader(data), vorbisSamplesPerChannel)
	if err != nil {
		return format.AVSpec{}, nil, wrapVorbisErr(err)
	}
	info := dec.Info()
	spec := format.AVSpec{
		SampleRate:   int(info.SampleRate),
		SampleFormat: format.FormatS16,
		ChannelCount: int(info.Channels),
	}

	var samples []float64
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for frame := range dec.SamplesOut() {
			for _, s := range frame {
				for _, ch := range s {
					samples = append(samples, float64(ch)*32767)
				}
			}
		}
	}()

	decodeErr := dec.Decode()
	dec.Close()
	<-collected

	if decodeErr != nil {
		return format.AVSpec{}, nil, wrapVorbisErr(decodeErr)
	}
	return spec, samples, nil
}

// wrapVorbisErr surfaces vorbis-go's error text as a CodecError. The
// xlab/vorbis-go bindings don't expose libvorbis's raw OV_* integer codes,
// only formatted Go errors, so those names live in the message text rather
// than as a separate taxonomy field.
func wrapVorbisErr(err error) error {
	return rlerr.Newf(rlerr.KindCodecError, rlerr.StageCodec, "vorbis decode failed: %v", err)
}
