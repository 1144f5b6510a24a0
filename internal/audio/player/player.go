// Package player turns a format.Decoder into a caller-paced PCM stream with
// sample-accurate loop points, fades, and termination. Grounded on the
// source's AudioPlayer (base/audio_player.h/.cc): LoadPCM's
// pull-until-satisfied / drain-pending-first / pad-on-underflow shape is a
// direct generalization of AudioPlayer::LoadPCM/Preserve/PopFront, and the
// effect queue is the Design Notes' prescribed replacement for the source's
// virtual ICommand hierarchy — a PlayerEffect interface applied in order
// against a short-lived *Player borrow instead of holding a back-reference.
//
// Unit convention: this package measures every cursor, loop bound, and fade
// duration in interleaved sample units (matching LoadPCM's own `n` parameter
// and spec scenario 4's "1.5 x total samples"), not per-channel frame counts.
package player

import (
	"rlvm/internal/audio/format"
	"rlvm/internal/rlerr"
)

// Status is the player's coarse playback state.
type Status int

const (
	StatusPlaying Status = iota
	StatusPaused
	StatusTerminated
)

// Effect is one queued per-frame transform. Commands never hold a reference
// to the Player beyond the duration of one Apply call — Effect.Apply
// takes *Player as a parameter instead, per the source redesign note on
// avoiding ICommand/player reference cycles.
type Effect interface {
	// Apply mutates frame in place and reports whether this effect has run
	// to completion and should be dropped from the queue.
	Apply(frame *format.AudioFrame, p *Player) (finished bool)
}

// Player is the per-stream playback state machine described in spec §4.8.
type Player struct {
	decoder format.Decoder

	loopStart *int64 // nil = no A-loop configured
	loopEnd   *int64 // nil = loop until the decoder itself runs dry

	status  Status
	effects []Effect
	volume  float64

	pending *format.AudioFrame
	cur     int64 // interleaved-sample cursor
	loopGen int    // incremented every time rewind() fires a loop
}

// New wraps decoder in a Player. Initial status is Playing if the decoder
// has data, Terminated otherwise (spec §4.8).
func New(decoder format.Decoder) *Player {
	p := &Player{decoder: decoder, volume: 1.0, status: StatusPlaying}
	if !decoder.HasNext() {
		p.status = StatusTerminated
	}
	return p
}

func (p *Player) Status() Status   { return p.status }
func (p *Player) Cursor() int64    { return p.cur }
func (p *Player) Terminate()       { p.status = StatusTerminated }
func (p *Player) Pause()           { p.status = StatusPaused }
func (p *Player) Unpause() {
	if p.status == StatusPaused {
		p.status = StatusPlaying
	}
}
func (p *Player) SetVolume(v float64) { p.volume = v }

// SetLoop configures the A-loop window. end == nil means "loop at the
// decoder's natural end of stream".
func (p *Player) SetLoop(start int64, end *int64) {
	s := start
	p.loopStart = &s
	p.loopEnd = end
}

// ClearLoop disables looping; OnEndOfPlayback will terminate instead.
func (p *Player) ClearLoop() {
	p.loopStart = nil
	p.loopEnd = nil
}

// LoadPCM pulls frames until n samples are accumulated or playback stops,
// applying the volume scalar and splitting any overshoot into the pending
// buffer for the next call — spec §4.8's three-step LoadPCM contract.
func (p *Player) LoadPCM(n int) (format.AudioData, error) {
	if n <= 0 {
		return format.AudioData{}, rlerr.Newf(rlerr.KindInvalidArgument, rlerr.StageRun, "LoadPCM: n must be > 0, got %d", n)
	}

	var prefix []float64
	if p.pending != nil {
		prefix = p.pending.Data.Samples
		p.pending = nil
	}

	var fresh []float64
	for len(prefix)+len(fresh) < n && p.status != StatusTerminated {
		p.loopNext()
		if p.status == StatusTerminated {
			break
		}
		if !p.decoder.HasNext() {
			p.onEndOfPlayback()
			continue
		}
		batch, err := p.decoder.DecodeNext()
		if err != nil {
			return format.AudioData{}, err
		}
		frame := format.AudioFrame{Data: batch, Cur: p.cur}
		frame = p.clip(frame)
		p.cur += int64(len(frame.Data.Samples))
		p.runEffects(&frame)
		fresh = append(fresh, frame.Data.Samples...)
	}

	for i := range fresh {
		fresh[i] *= p.volume
	}

	combined := append(prefix, fresh...)
	spec := p.decoder.Spec()

	if len(combined) > n {
		excess := append([]float64(nil), combined[n:]...)
		combined = combined[:n]
		p.pending = &format.AudioFrame{
			Data: format.AudioData{Spec: spec, Samples: excess},
			Cur:  p.cur - int64(len(excess)),
		}
	} else if len(combined) < n {
		silence := spec.SampleFormat.Silence()
		for len(combined) < n {
			combined = append(combined, silence)
		}
	}

	return format.AudioData{Spec: spec, Samples: combined}, nil
}

// loopNext is the pre-pull rule: once the cursor reaches the configured
// loop-end, rewind the decoder. Codecs only guarantee Seek(0, BEG), so
// "seek to loop-start" is realized as rewind-to-zero plus Clipping trimming
// everything before loop-start out of subsequent frames.
func (p *Player) loopNext() {
	if p.loopEnd != nil && p.cur >= *p.loopEnd {
		p.rewind()
	}
}

func (p *Player) rewind() {
	p.decoder.Seek(0, format.SeekBeg)
	p.cur = 0
	p.loopGen++
}

// onEndOfPlayback runs when the decoder reports no more data: loop back to
// loop-start if one is configured, otherwise terminate (spec §4.8).
func (p *Player) onEndOfPlayback() {
	if p.loopStart != nil {
		p.rewind()
		return
	}
	p.Terminate()
}

// clip implements spec §4.8's Clipping rule: frames entirely outside
// [loop-start, loop-end) are dropped, partially-overlapping frames trimmed
// to the intersection.
func (p *Player) clip(frame format.AudioFrame) format.AudioFrame {
	if p.loopStart == nil && p.loopEnd == nil {
		return frame
	}
	var lo int64
	if p.loopStart != nil {
		lo = *p.loopStart
	}
	hi := int64(1)<<62 - 1
	if p.loopEnd != nil {
		hi = *p.loopEnd
	}

	start := frame.Cur
	end := frame.Cur + int64(len(frame.Data.Samples))
	if end <= lo || start >= hi {
		return format.AudioFrame{Data: format.AudioData{Spec: frame.Data.Spec}, Cur: frame.Cur}
	}
	clipStart := 0
	if start < lo {
		clipStart = int(lo - start)
	}
	clipEnd := len(frame.Data.Samples)
	if end > hi {
		clipEnd -= int(end - hi)
	}
	return frame.Slice(clipStart, clipEnd)
}

// runEffects passes frame through every queued command in order, dropping
// any that report finished.
func (p *Player) runEffects(frame *format.AudioFrame) {
	kept := p.effects[:0]
	for _, e := range p.effects {
		if !e.Apply(frame, p) {
			kept = append(kept, e)
		}
	}
	p.effects = kept
}

// FadeIn pushes a volume ramp from 0 to 1 over ms milliseconds of output.
func (p *Player) FadeIn(ms int) {
	samples := p.msToSamples(ms)
	p.effects = append(p.effects, &AdjustVolume{StartVol: 0, EndVol: 1, Total: samples})
}

// FadeOut pushes a volume ramp from 1 to 0 over ms milliseconds, optionally
// terminating the player once the ramp completes.
func (p *Player) FadeOut(ms int, terminate bool) {
	samples := p.msToSamples(ms)
	p.effects = append(p.effects, &AdjustVolume{StartVol: 1, EndVol: 0, Total: samples})
	if terminate {
		p.effects = append(p.effects, &TerminateAfter{Remaining: samples})
	}
}

func (p *Player) msToSamples(ms int) int {
	spec := p.decoder.Spec()
	return ms * spec.SampleRate * spec.ChannelCount / 1000
}

// SetLoopTimes configures how many times the A-loop repeats before
// terminating. n < 0 loops forever (no TerminateAfterNLoops is queued).
func (p *Player) SetLoopTimes(n int) {
	kept := p.effects[:0]
	for _, e := range p.effects {
		if _, ok := e.(*TerminateAfterNLoops); !ok {
			kept = append(kept, e)
		}
	}
	p.effects = kept
	if n >= 0 {
		p.effects = append(p.effects, &TerminateAfterNLoops{Remaining: n, LastGen: p.loopGen})
	}
}

// SetPLoop sets up an intro-then-loop pattern: play [from, to) once, then on
// the first wrap rewrite the A-loop to [loopPoint, to).
func (p *Player) SetPLoop(from, to, loopPoint int64) {
	end := to
	p.SetLoop(from, &end)
	p.effects = append(p.effects, &RegisterNextLoop{LoopPoint: loopPoint, LastGen: p.loopGen})
}
