// Package mixer is the 25-channel sound system facade described in spec
// §4.9, generalizing apu.APU's fixed 4-channel register bank (apu/apu.go)
// to the source's channel layout (systems/base/sound_system.h): 16 base PCM
// channels, 8 extra wavplay channels, and 1 dedicated voice channel.
package mixer

import (
	"sort"

	"rlvm/internal/audio/format"
	"rlvm/internal/audio/player"
	"rlvm/internal/rlerr"
)

// PlayerDecoder is the decoder surface WavPlay/BgmPlay/KoePlay need: the
// shared format.Decoder contract every codec package implements.
type PlayerDecoder = format.Decoder

const (
	NumBaseChannels  = 16
	NumExtraChannels = 8
	NumKoeChannels   = 1
	NumChannels      = NumBaseChannels + NumExtraChannels + NumKoeChannels
	KoeChannel       = NumChannels - 1
)

// Device is the minimal surface the mixer needs from an audio output
// backend, modeled on internal/ui/ui.go's sdl.OpenAudioDevice /
// sdl.QueueAudio pairing. A real implementation wraps veandco/go-sdl2;
// tests inject a fake that just records bytes.
type Device interface {
	QueueAudio(samples []float64) error
	QueuedBytes() int
}

// channel holds one slot's player plus its independent volume knob. Script
// volume and per-channel mod volume are tracked separately and combined
// multiplicatively, matching compute_channel_volume in sound_system.h.
type channel struct {
	p           *player.Player
	scriptVol   int // 0-255, set by script-level volume commands
	modVol      int // 0-255, set by the "mod player" / system overlay
	fadeTask    *volumeAdjustTask
}

// volumeAdjustTask ramps a channel's script volume linearly over time,
// grounded on sound_system.h's VolumeAdjustTask::calculateVolumeFor.
type volumeAdjustTask struct {
	startTime, endTime   int64
	startVolume, endVolume int
}

func (t *volumeAdjustTask) volumeAt(now int64) int {
	if now >= t.endTime {
		return t.endVolume
	}
	if now <= t.startTime {
		return t.startVolume
	}
	span := t.endTime - t.startTime
	elapsed := now - t.startTime
	return t.startVolume + (t.endVolume-t.startVolume)*int(elapsed)/int(span)
}

// SoundSystem is the per-VM audio facade: BGM, SE, wavplay, and koe voice
// channels, combined per-frame into one output device.
type SoundSystem struct {
	device   Device
	channels [NumChannels]channel
	seTable  map[int]SeEntry
	// koeEnabled maps character id -> whether koe playback is enabled for
	// them. Per sound_system.h, a character absent from the map defaults
	// to enabled.
	koeEnabled map[int]bool
	now        int64 // monotonic frame counter advanced by ExecuteSoundSystem
}

// SeEntry is one row of the #SE index table: a sample file name paired with
// its default channel number.
type SeEntry struct {
	File    string
	Channel int
}

// New builds a SoundSystem with all channels at full volume, driving the
// given output device.
func New(device Device) *SoundSystem {
	s := &SoundSystem{device: device, seTable: map[int]SeEntry{}, koeEnabled: map[int]bool{}}
	for i := range s.channels {
		s.channels[i].scriptVol = 255
		s.channels[i].modVol = 255
	}
	return s
}

// SetSeTable installs the #SE index -> (file, channel) table used by PlaySe.
func (s *SoundSystem) SetSeTable(table map[int]SeEntry) {
	s.seTable = table
}

func (s *SoundSystem) checkChannel(ch int) error {
	if ch < 0 || ch >= NumChannels {
		return rlerr.Newf(rlerr.KindInvalidArgument, rlerr.StageRun, "channel %d out of range [0,%d)", ch, NumChannels)
	}
	return nil
}

// WavPlay starts decoder playing on channel ch, replacing whatever was
// already playing there.
func (s *SoundSystem) WavPlay(ch int, decoder PlayerDecoder, looping bool) error {
	if err := s.checkChannel(ch); err != nil {
		return err
	}
	p := player.New(decoder)
	if looping {
		p.SetLoop(0, nil)
	}
	s.channels[ch].p = p
	return nil
}

// WavStop terminates whatever is playing on ch, if anything.
func (s *SoundSystem) WavStop(ch int) error {
	if err := s.checkChannel(ch); err != nil {
		return err
	}
	if s.channels[ch].p != nil {
		s.channels[ch].p.Terminate()
	}
	return nil
}

// WavStopAll terminates every base and extra wavplay channel, which
// includes the BGM channel (channel 0), leaving the koe channel untouched.
func (s *SoundSystem) WavStopAll() {
	for i := 0; i < NumBaseChannels+NumExtraChannels; i++ {
		if s.channels[i].p != nil {
			s.channels[i].p.Terminate()
		}
	}
}

// WavFadeOut fades channel ch to silence over ms milliseconds, terminating
// it once the fade completes.
func (s *SoundSystem) WavFadeOut(ch int, ms int) error {
	if err := s.checkChannel(ch); err != nil {
		return err
	}
	if s.channels[ch].p != nil {
		s.channels[ch].p.FadeOut(ms, true)
	}
	return nil
}

// BGM always plays on channel 0, per the source's convention of a dedicated
// background-music channel layered beneath the wavplay channels.
const BgmChannel = 0

func (s *SoundSystem) BgmPlay(decoder PlayerDecoder, looping bool) error {
	return s.WavPlay(BgmChannel, decoder, looping)
}

func (s *SoundSystem) BgmStop() error   { return s.WavStop(BgmChannel) }
func (s *SoundSystem) BgmPause() error {
	if s.channels[BgmChannel].p != nil {
		s.channels[BgmChannel].p.Pause()
	}
	return nil
}
func (s *SoundSystem) BgmUnpause() error {
	if s.channels[BgmChannel].p != nil {
		s.channels[BgmChannel].p.Unpause()
	}
	return nil
}
func (s *SoundSystem) BgmFadeOut(ms int) error { return s.WavFadeOut(BgmChannel, ms) }

// BgmStatus reports the BGM channel's player status, or player.StatusTerminated
// if nothing is loaded.
func (s *SoundSystem) BgmStatus() player.Status {
	if s.channels[BgmChannel].p == nil {
		return player.StatusTerminated
	}
	return s.channels[BgmChannel].p.Status()
}

// PlaySe looks up seIndex in the #SE table and plays it on its configured
// channel via the supplied loader (since the mixer itself has no knowledge
// of the ROM/archive layer that resolves a file name to a decoder).
func (s *SoundSystem) PlaySe(seIndex int, load func(file string) (PlayerDecoder, error)) error {
	entry, ok := s.seTable[seIndex]
	if !ok {
		return rlerr.Newf(rlerr.KindInvalidArgument, rlerr.StageRun, "no #SE entry for index %d", seIndex)
	}
	decoder, err := load(entry.File)
	if err != nil {
		return err
	}
	return s.WavPlay(entry.Channel, decoder, false)
}

// KoePlay plays a voice clip on the dedicated koe channel. id encodes
// file-no*100000+index per the source convention; charID selects the
// per-character enable flag (0 = no character gate).
func (s *SoundSystem) KoePlay(id int, charID int, load func(fileNo, index int) (PlayerDecoder, error)) error {
	if charID != 0 {
		if enabled, ok := s.koeEnabled[charID]; ok && !enabled {
			return nil
		}
	}
	fileNo := id / 100000
	index := id % 100000
	decoder, err := load(fileNo, index)
	if err != nil {
		return err
	}
	return s.WavPlay(KoeChannel, decoder, false)
}

// SetKoeEnabled toggles voice playback for a specific character id. A
// character never mentioned here defaults to enabled (sound_system.h).
func (s *SoundSystem) SetKoeEnabled(charID int, enabled bool) {
	s.koeEnabled[charID] = enabled
}

// SetChannelVolume sets the script-level volume (0-255) for ch.
func (s *SoundSystem) SetChannelVolume(ch, vol int) error {
	if err := s.checkChannel(ch); err != nil {
		return err
	}
	s.channels[ch].scriptVol = clampVol(vol)
	return nil
}

// AdjustChannelVolume schedules a linear ramp of the script volume from its
// current value to target over durationFrames frames.
func (s *SoundSystem) AdjustChannelVolume(ch, target, durationFrames int) error {
	if err := s.checkChannel(ch); err != nil {
		return err
	}
	c := &s.channels[ch]
	c.fadeTask = &volumeAdjustTask{
		startTime:   s.now,
		endTime:     s.now + int64(durationFrames),
		startVolume: c.scriptVol,
		endVolume:   clampVol(target),
	}
	return nil
}

func clampVol(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// computeChannelVolume mirrors sound_system.h's
// compute_channel_volume = (channel_volume * system_volume) / 255, treating
// scriptVol as channel_volume and modVol as system_volume, and then divides
// by a further 255 so the result is a 0..1 gain.
func computeChannelVolume(c *channel) float64 {
	return float64(c.scriptVol) * float64(c.modVol) / (255.0 * 255.0)
}

// ExecuteSoundSystem advances every active channel by one frame's worth of
// samplesPerFrame samples, resolves pending fade tasks, mixes the result,
// and queues it to the output device. Called once per emulated video frame.
func (s *SoundSystem) ExecuteSoundSystem(samplesPerFrame int) error {
	s.now++
	mixed := make([]float64, samplesPerFrame)

	for i := range s.channels {
		c := &s.channels[i]
		if c.p == nil || c.p.Status() != player.StatusPlaying {
			continue
		}
		if c.fadeTask != nil {
			c.scriptVol = c.fadeTask.volumeAt(s.now)
			if s.now >= c.fadeTask.endTime {
				c.fadeTask = nil
			}
		}
		out, err := c.p.LoadPCM(samplesPerFrame)
		if err != nil {
			return err
		}
		vol := computeChannelVolume(c)
		for j := 0; j < samplesPerFrame && j < len(out.Samples); j++ {
			mixed[j] += out.Samples[j] * vol
		}
	}

	return s.device.QueueAudio(mixed)
}

// seTableKeys returns the #SE indices in ascending order, useful for
// deterministic iteration in tests and diagnostics.
func (s *SoundSystem) seTableKeys() []int {
	keys := make([]int, 0, len(s.seTable))
	for k := range s.seTable {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
