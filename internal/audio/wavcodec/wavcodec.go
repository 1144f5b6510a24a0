// Package wavcodec parses and emits RIFF/WAVE PCM files. Grounded on the
// source's WavDecoder (base/avdec/wav.cc / wav.h) and on the teacher's
// little-endian byte-slice idiom for binary layouts (internal/rom/builder.go
// uses encoding/binary.LittleEndian.PutUint* directly over byte slices
// rather than a reflective struct decoder).
package wavcodec

import (
	"encoding/binary"

	"rlvm/internal/audio/format"
	"rlvm/internal/rlerr"
)

const (
	minHeaderSize = 44
	batchBytes    = 1024
)

type fmtHeader struct {
	formatTag     uint16
	channels      uint16
	samplesPerSec uint32
	bitsPerSample uint16
}

// Decoder parses a RIFF/WAVE byte stream and serves its PCM data chunk in
// DecodeNext batches, mirroring WavDecoder::DecodeNext's 1024-byte batching.
type Decoder struct {
	spec     format.AVSpec
	fmt      fmtHeader
	data     []byte
	remain   []byte
}

// New validates the RIFF/WAVE header and locates the fmt/data chunks
// (WavDecoder::ValidateWav + ParseChunks), failing fast on malformed input.
func New(raw []byte) (*Decoder, error) {
	if len(raw) < minHeaderSize {
		return nil, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "wav: too small to contain a RIFF header")
	}
	if string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "wav: invalid RIFF/WAVE tag")
	}
	riffSize := 8 + int(binary.LittleEndian.Uint32(raw[4:8]))
	if riffSize > len(raw) {
		return nil, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "wav: file size mismatch in RIFF header")
	}
	raw = raw[:riffSize]

	var fh fmtHeader
	var dataChunk []byte
	haveFmt, haveData := false, false

	pos := 12
	for pos < len(raw) {
		if pos+8 > len(raw) {
			return nil, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "wav: truncated chunk header")
		}
		tag := string(raw[pos : pos+4])
		length := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		body := raw[pos+8:]
		if length > len(body) {
			return nil, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "wav: chunk length exceeds remaining data")
		}

		switch tag {
		case "fmt ":
			if haveFmt {
				return nil, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "wav: found more than one fmt chunk")
			}
			if length != 16 {
				if length != 18 || (length >= 18 && binary.LittleEndian.Uint16(body[16:18]) != 0) {
					return nil, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "wav: invalid fmt chunk length")
				}
			}
			fh = fmtHeader{
				formatTag:     binary.LittleEndian.Uint16(body[0:2]),
				channels:      binary.LittleEndian.Uint16(body[2:4]),
				samplesPerSec: binary.LittleEndian.Uint32(body[4:8]),
				bitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "wav: found data chunk before fmt chunk")
			}
			dataChunk = body[:length]
			haveData = true
		}
		pos += 8 + length
		if length%2 == 1 {
			pos++ // RIFF chunks are word-aligned; odd-length chunks carry a pad byte.
		}
	}
	if !haveFmt {
		return nil, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "wav: no fmt chunk found")
	}
	if !haveData {
		return nil, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "wav: no data chunk found")
	}

	sf, err := sampleFormatFor(fh.bitsPerSample)
	if err != nil {
		return nil, err
	}
	spec := format.AVSpec{
		SampleRate:   int(fh.samplesPerSec),
		SampleFormat: sf,
		ChannelCount: int(fh.channels),
	}
	return &Decoder{spec: spec, fmt: fh, data: dataChunk, remain: dataChunk}, nil
}

func sampleFormatFor(bits uint16) (format.SampleFormat, error) {
	switch bits {
	case 8:
		return format.FormatU8, nil
	case 16:
		return format.FormatS16, nil
	case 32:
		return format.FormatS32, nil
	case 64:
		return format.FormatS64, nil
	default:
		return format.FormatNone, rlerr.Newf(rlerr.KindCodecError, rlerr.StageCodec, "wav: unsupported sample width %d", bits)
	}
}

func (d *Decoder) Name() string        { return "WavDecoder" }
func (d *Decoder) Spec() format.AVSpec { return d.spec }
func (d *Decoder) HasNext() bool       { return len(d.remain) > 0 }

// DecodeNext pulls up to batchBytes of raw PCM and decodes it into floats
// (WavDecoder::DecodeNext).
func (d *Decoder) DecodeNext() (format.AudioData, error) {
	if !d.HasNext() {
		return format.AudioData{}, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "wav: no more data to decode")
	}
	n := batchBytes
	if n > len(d.remain) {
		n = len(d.remain)
	}
	chunk := d.remain[:n]
	d.remain = d.remain[n:]

	samples, err := decodeSamples(chunk, d.spec.SampleFormat)
	if err != nil {
		return format.AudioData{}, err
	}
	return format.AudioData{Spec: d.spec, Samples: samples}, nil
}

func (d *Decoder) DecodeAll() (format.AudioData, error) {
	return format.ConcatAll(d)
}

func (d *Decoder) Seek(offset int64, whence format.SeekWhence) error {
	if whence != format.SeekBeg || offset != 0 {
		return rlerr.New(rlerr.KindInvalidArgument, rlerr.StageCodec, "wav: only Seek(0, BEG) is supported")
	}
	d.remain = d.data
	return nil
}

func decodeSamples(chunk []byte, sf format.SampleFormat) ([]float64, error) {
	width := sf.BytesPerSample()
	if width == 0 || len(chunk)%width != 0 {
		return nil, rlerr.Newf(rlerr.KindCodecError, rlerr.StageCodec, "wav: chunk length %d not a multiple of sample width %d", len(chunk), width)
	}
	n := len(chunk) / width
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		b := chunk[i*width : (i+1)*width]
		switch sf {
		case format.FormatU8:
			out[i] = float64(b[0])
		case format.FormatS16:
			out[i] = float64(int16(binary.LittleEndian.Uint16(b)))
		case format.FormatS32:
			out[i] = float64(int32(binary.LittleEndian.Uint32(b)))
		case format.FormatS64:
			out[i] = float64(int64(binary.LittleEndian.Uint64(b)))
		}
	}
	return out, nil
}

// Encode writes data back out as a RIFF/WAVE byte stream, byte-exact with
// MakeRiffHeader/EncodeWav from the source: RIFF size = 4+24+8+data size,
// fmt chunk size 16, format tag 1 (PCM).
func Encode(data format.AudioData) []byte {
	width := data.Spec.SampleFormat.BytesPerSample()
	dataSize := len(data.Samples) * width
	out := make([]byte, 44+dataSize)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(4+24+8+dataSize))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(data.Spec.ChannelCount))
	binary.LittleEndian.PutUint32(out[24:28], uint32(data.Spec.SampleRate))
	byteRate := data.Spec.SampleRate * data.Spec.ChannelCount * width
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(data.Spec.ChannelCount*width))
	binary.LittleEndian.PutUint16(out[34:36], uint16(8*width))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	for i, s := range data.Samples {
		b := out[44+i*width : 44+(i+1)*width]
		switch data.Spec.SampleFormat {
		case format.FormatU8:
			b[0] = byte(int(s))
		case format.FormatS16:
			binary.LittleEndian.PutUint16(b, uint16(int16(s)))
		case format.FormatS32:
			binary.LittleEndian.PutUint32(b, uint32(int32(s)))
		case format.FormatS64:
			binary.LittleEndian.PutUint64(b, uint64(int64(s)))
		}
	}
	return out
}
