package format

// SeekWhence mirrors the source's SEEKDIR: only rewind-to-start is ever
// required by any decoder or by the player (spec §4.7).
type SeekWhence int

const (
	SeekBeg SeekWhence = iota
	SeekCur
)

// Decoder is the shared surface every codec (NWA, Ogg, WAV) implements, and
// the only thing AudioPlayer depends on. Modeled on the source's
// IAudioDecoder (base/avdec/audio_decoder.h): DecodeNext pulls one bounded
// batch, DecodeAll drains the stream, HasNext reports exhaustion, Seek only
// promises rewind-to-start.
type Decoder interface {
	Name() string
	Spec() AVSpec
	HasNext() bool
	DecodeNext() (AudioData, error)
	DecodeAll() (AudioData, error)
	Seek(offset int64, whence SeekWhence) error
}

// ConcatAll drains a decoder via repeated DecodeNext calls and concatenates
// the batches — the shared DecodeAll body every codec's DecodeAll can call.
func ConcatAll(d Decoder) (AudioData, error) {
	spec := d.Spec()
	out := AudioData{Spec: spec}
	for d.HasNext() {
		batch, err := d.DecodeNext()
		if err != nil {
			return AudioData{}, err
		}
		out.Samples = append(out.Samples, batch.Samples...)
	}
	return out, nil
}
