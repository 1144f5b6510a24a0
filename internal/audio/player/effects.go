package player

import "rlvm/internal/audio/format"

// AdjustVolume ramps linearly from StartVol to EndVol over Total samples.
// Grounded on the source's VolumeAdjustTask::calculateVolumeFor, expressed
// here as a queued Effect instead of a per-frame field checked on every mix.
type AdjustVolume struct {
	StartVol, EndVol float64
	Total            int
	done             int
}

func (e *AdjustVolume) Apply(frame *format.AudioFrame, p *Player) bool {
	for i := range frame.Data.Samples {
		if e.done >= e.Total {
			break
		}
		t := float64(e.done) / float64(e.Total)
		vol := e.StartVol + (e.EndVol-e.StartVol)*t
		frame.Data.Samples[i] *= vol
		e.done++
	}
	return e.done >= e.Total
}

// TerminateAfter truncates the stream to Remaining more samples and
// terminates the player once they've been emitted. Used by FadeOut(terminate
// = true) to stop playback exactly when the fade-out ramp completes.
type TerminateAfter struct {
	Remaining int
}

func (e *TerminateAfter) Apply(frame *format.AudioFrame, p *Player) bool {
	n := len(frame.Data.Samples)
	if n >= e.Remaining {
		frame.Data.Samples = frame.Data.Samples[:e.Remaining]
		p.Terminate()
		return true
	}
	e.Remaining -= n
	return false
}

// TerminateAfterNLoops counts loop wraps (Player.loopGen advancing past the
// value last observed) and terminates the player once Remaining wraps have
// been seen.
type TerminateAfterNLoops struct {
	Remaining int
	LastGen   int
}

func (e *TerminateAfterNLoops) Apply(frame *format.AudioFrame, p *Player) bool {
	if p.loopGen != e.LastGen {
		e.LastGen = p.loopGen
		e.Remaining--
		if e.Remaining <= 0 {
			p.Terminate()
			return true
		}
	}
	return false
}

// RegisterNextLoop fires exactly once, on the first loop wrap after it was
// queued, rewriting the player's A-loop-start to LoopPoint. This is how
// SetPLoop implements "play the intro once, then loop the tail forever".
type RegisterNextLoop struct {
	LoopPoint int64
	LastGen   int
	fired     bool
}

func (e *RegisterNextLoop) Apply(frame *format.AudioFrame, p *Player) bool {
	if e.fired {
		return true
	}
	if p.loopGen != e.LastGen {
		lp := e.LoopPoint
		p.loopStart = &lp
		e.fired = true
		return true
	}
	return false
}
