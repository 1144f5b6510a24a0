// Package nwa decodes NWA, the RealLive engine's custom compressed-PCM
// container. Grounded directly on original_source/src/base/acodec/nwa.h's
// NwaHeader, NwaDecoderImpl/NwaHQDecoder/NwaCompDecoder types and on
// NwaCompDecoder::DecodeUnit's per-unit decompression algorithm, including
// its ReadSM sign-magnitude bit convention and its replace-not-add zero-mode
// run-length stages; see DESIGN.md for notes on an earlier revision of this
// package that deviated from that source.
package nwa

import (
	"encoding/binary"

	"rlvm/internal/audio/format"
	"rlvm/internal/rlerr"
)

const headerSize = 44

// Header is NWA's 44-byte little-endian container header (spec §6).
type Header struct {
	Channels            uint16
	BitsPerSample       uint16
	SampleRate          uint32
	CompressionMode     int32
	ZeroMode            uint32
	UnitCount           uint32
	OriginalSize        uint32
	PackedSize          uint32
	TotalSampleCount    uint32
	SamplesPerUnit      uint32
	LastUnitSampleCount uint32
	LastUnitPackedSize  uint32
}

func parseHeader(raw []byte) (Header, error) {
	if len(raw) < headerSize {
		return Header{}, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "nwa: file too small to contain a header")
	}
	le := binary.LittleEndian
	return Header{
		Channels:            le.Uint16(raw[0:2]),
		BitsPerSample:       le.Uint16(raw[2:4]),
		SampleRate:          le.Uint32(raw[4:8]),
		CompressionMode:     int32(le.Uint32(raw[8:12])),
		ZeroMode:            le.Uint32(raw[12:16]),
		UnitCount:           le.Uint32(raw[16:20]),
		OriginalSize:        le.Uint32(raw[20:24]),
		PackedSize:          le.Uint32(raw[24:28]),
		TotalSampleCount:    le.Uint32(raw[28:32]),
		SamplesPerUnit:      le.Uint32(raw[32:36]),
		LastUnitSampleCount: le.Uint32(raw[36:40]),
		LastUnitPackedSize:  le.Uint32(raw[40:44]),
	}, nil
}

// Decoder serves one NWA stream's PCM out a unit (or, for uncompressed
// streams, a single whole-buffer batch) at a time.
type Decoder struct {
	header  Header
	spec    format.AVSpec
	raw     []byte
	uncomp  bool
	units   [][]byte // per-unit compressed payload, empty when uncomp
	samples [][]int32
	unitIdx int
	hqDone  bool
}

// New parses the header and offset table (if compressed) and returns a
// ready decoder. It does not eagerly decompress — decompression happens
// lazily, one unit per DecodeNext call.
func New(raw []byte) (*Decoder, error) {
	h, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}
	if h.Channels == 0 || h.Channels > 2 {
		return nil, rlerr.Newf(rlerr.KindCodecError, rlerr.StageCodec, "nwa: unsupported channel count %d", h.Channels)
	}
	spec := format.AVSpec{
		SampleRate:   int(h.SampleRate),
		SampleFormat: format.FormatS16,
		ChannelCount: int(h.Channels),
	}

	d := &Decoder{header: h, spec: spec, raw: raw}
	if h.CompressionMode == -1 {
		d.uncomp = true
		return d, nil
	}

	tableStart := headerSize
	tableEnd := tableStart + 4*int(h.UnitCount)
	if tableEnd > len(raw) {
		return nil, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "nwa: offset table extends past end of file")
	}
	offsets := make([]uint32, h.UnitCount)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(raw[tableStart+4*i : tableStart+4*i+4])
	}
	d.units = make([][]byte, h.UnitCount)
	for i := range offsets {
		start := int(offsets[i])
		var end int
		if i+1 < len(offsets) {
			end = int(offsets[i+1])
		} else {
			end = start + int(h.LastUnitPackedSize)
		}
		if start < 0 || end > len(raw) || start > end {
			return nil, rlerr.Newf(rlerr.KindCodecError, rlerr.StageCodec, "nwa: unit %d has an out-of-range byte range [%d,%d)", i, start, end)
		}
		d.units[i] = raw[start:end]
	}
	return d, nil
}

func (d *Decoder) Name() string        { return "NwaDecoder" }
func (d *Decoder) Spec() format.AVSpec { return d.spec }

func (d *Decoder) HasNext() bool {
	if d.uncomp {
		return !d.hqDone
	}
	return d.unitIdx < len(d.units)
}

func (d *Decoder) DecodeNext() (format.AudioData, error) {
	if !d.HasNext() {
		return format.AudioData{}, rlerr.New(rlerr.KindCodecError, rlerr.StageCodec, "nwa: no more data to decode")
	}
	if d.uncomp {
		return d.decodeHQ()
	}
	return d.decodeUnit(d.unitIdx)
}

func (d *Decoder) DecodeAll() (format.AudioData, error) {
	return format.ConcatAll(d)
}

func (d *Decoder) Seek(offset int64, whence format.SeekWhence) error {
	if whence != format.SeekBeg || offset != 0 {
		return rlerr.New(rlerr.KindInvalidArgument, rlerr.StageCodec, "nwa: only Seek(0, BEG) is supported")
	}
	d.unitIdx = 0
	d.hqDone = false
	return nil
}

func (d *Decoder) decodeHQ() (format.AudioData, error) {
	d.hqDone = true
	body := d.raw[headerSize:]
	width := int(d.header.BitsPerSample) / 8
	if width != 1 && width != 2 {
		return format.AudioData{}, rlerr.Newf(rlerr.KindCodecError, rlerr.StageCodec, "nwa: unsupported uncompressed sample width %d", d.header.BitsPerSample)
	}
	n := len(body) / width
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		switch width {
		case 1:
			samples[i] = float64(int8(body[i])) * 256
		case 2:
			samples[i] = float64(int16(binary.LittleEndian.Uint16(body[i*2 : i*2+2])))
		}
	}
	return format.AudioData{Spec: d.spec, Samples: samples}, nil
}

// decodeUnit decompresses unit i in full and returns it as one AudioData
// batch, per spec §4.6's per-unit decoding algorithm.
func (d *Decoder) decodeUnit(i int) (format.AudioData, error) {
	d.unitIdx++
	payload := d.units[i]
	comp := int(d.header.CompressionMode)
	channels := int(d.header.Channels)

	target := int(d.header.SamplesPerUnit)
	if i == len(d.units)-1 {
		target = int(d.header.LastUnitSampleCount)
	}

	br := newBitReader(payload)
	cur := make([]int32, channels)
	for c := 0; c < channels; c++ {
		seed, err := br.popBits(16)
		if err != nil {
			return format.AudioData{}, unitErr(i, err)
		}
		cur[c] = int32(int16(seed))
	}

	out := make([]float64, 0, target)
	active := 0
	// One outer iteration reads exactly one 3-bit type tag and toggles the
	// active channel exactly once at the end, whether it emits zero samples
	// (a zero-mode run-length of 0), one, or many — matching
	// NwaCompDecoder::DecodeUnit, where `channel ^= 1` sits outside the
	// do-while that dispatches on `type` and outside the zero-mode
	// `while (zeros--)` repeat loop. Samples emitted by a repeat run do not
	// toggle the channel between themselves.
	for len(out) < target {
		tag, err := br.popBits(3)
		if err != nil {
			return format.AudioData{}, unitErr(i, err)
		}
		switch {
		case tag == 0:
			count := 1
			if d.header.ZeroMode != 0 {
				count, err = decodeRunLength(br)
				if err != nil {
					return format.AudioData{}, unitErr(i, err)
				}
			}
			for k := 0; k < count && len(out) < target; k++ {
				out = append(out, float64(cur[active]))
			}
		case tag >= 1 && tag <= 6:
			bits, shift := deltaParams(int(tag), comp)
			delta, err := br.popSignMagnitude(bits)
			if err != nil {
				return format.AudioData{}, unitErr(i, err)
			}
			cur[active] += delta << uint(shift)
			out = append(out, float64(clipS16(cur[active])))
		default: // tag == 7
			flag, err := br.popBits(1)
			if err != nil {
				return format.AudioData{}, unitErr(i, err)
			}
			if flag != 0 {
				cur[active] = 0
			} else {
				bits, shift := escapeParams(comp)
				delta, err := br.popSignMagnitude(bits)
				if err != nil {
					return format.AudioData{}, unitErr(i, err)
				}
				cur[active] += delta << uint(shift)
			}
			out = append(out, float64(clipS16(cur[active])))
		}
		active = (active + 1) % channels
	}

	return format.AudioData{Spec: d.spec, Samples: out}, nil
}

// decodeRunLength implements the zero-mode run-length code from spec §4.6:
// "1 bit; if 1, 2 more bits; if value = 11, 8 more bits". Each stage's bits
// *replace* the running count rather than add to it, matching
// NwaCompDecoder::DecodeUnit: `zeros = Popbits(1); if (zeros==1) zeros =
// Popbits(2); if (zeros==0b11) zeros = Popbits(8);` — a first bit of 0
// yields a run length of 0 (no samples emitted), not one.
func decodeRunLength(br *bitReader) (int, error) {
	zeros, err := br.popBits(1)
	if err != nil {
		return 0, err
	}
	if zeros == 0 {
		return 0, nil
	}
	zeros, err = br.popBits(2)
	if err != nil {
		return 0, err
	}
	if zeros != 0b11 {
		return int(zeros), nil
	}
	zeros, err = br.popBits(8)
	if err != nil {
		return 0, err
	}
	return int(zeros), nil
}

// deltaParams computes (bits, shift) for type tags 1..6 per spec §4.6.
func deltaParams(tag, comp int) (bits, shift int) {
	if comp >= 3 {
		bits = 3 + comp
		shift = 1 + tag
	} else {
		bits = 5 - comp
		shift = 2 + tag + comp
	}
	return
}

// escapeParams computes (bits, shift) for the type-7 non-flag path.
func escapeParams(comp int) (bits, shift int) {
	if comp >= 3 {
		return 8, 9
	}
	return 8 - comp, 9 + comp
}

func clipS16(v int32) int32 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}

func unitErr(unit int, cause error) error {
	if re, ok := cause.(*rlerr.Error); ok {
		return rlerr.Newf(rlerr.KindCodecError, rlerr.StageCodec, "nwa: unit %d: %s", unit, re.Message)
	}
	return rlerr.Newf(rlerr.KindCodecError, rlerr.StageCodec, "nwa: unit %d: %v", unit, cause)
}
