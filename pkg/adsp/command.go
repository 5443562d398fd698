package adsp

import "math"

// CommandKind selects what a Command does to the session mix buffer.
type CommandKind uint8

const (
	// CmdClear zeroes the session mix buffer.
	CmdClear CommandKind = iota
	// CmdMix adds Samples, scaled by Volume, into the session mix buffer.
	CmdMix
	// CmdVolume scales the whole session mix buffer by Volume.
	CmdVolume
	// CmdDepop ramps the first samples of the buffer in from silence.
	CmdDepop
	// CmdOutput accumulates the session mix buffer into the device output.
	CmdOutput
)

func (k CommandKind) String() string {
	switch k {
	case CmdClear:
		return "clear"
	case CmdMix:
		return "mix"
	case CmdVolume:
		return "volume"
	case CmdDepop:
		return "depop"
	case CmdOutput:
		return "output"
	default:
		return "unknown"
	}
}

type Command struct {
	Kind    CommandKind
	Volume  float32
	Samples []int16 // interleaved, CmdMix only
}

// CommandBuffer is everything one session asks the DSP to do in one tick.
//
// Each buffer is retired exactly once, either executed by a tick or
// superseded by a newer buffer from the same session, and retiring it
// increments host syncpoint SyncpointID.
type CommandBuffer struct {
	SessionID   uint32
	SyncpointID uint32
	Commands    []Command
}

// depopSamples is the length of the CmdDepop fade-in, in sample frames.
const depopSamples = 16

// execute runs the buffer against a session mix buffer and accumulates the
// result into out. Returns the number of commands run.
func (cb *CommandBuffer) execute(mix, out []int32, channels int) int {
	for _, cmd := range cb.Commands {
		switch cmd.Kind {
		case CmdClear:
			clear(mix)
		case CmdMix:
			n := min(len(mix), len(cmd.Samples))
			for i := 0; i < n; i++ {
				mix[i] += int32(float32(cmd.Samples[i]) * cmd.Volume)
			}
		case CmdVolume:
			for i := range mix {
				mix[i] = int32(float32(mix[i]) * cmd.Volume)
			}
		case CmdDepop:
			ramp := min(depopSamples, len(mix)/max(channels, 1))
			for f := 0; f < ramp; f++ {
				for ch := 0; ch < channels; ch++ {
					i := f*channels + ch
					mix[i] = mix[i] * int32(f) / int32(ramp)
				}
			}
		case CmdOutput:
			for i := range out {
				out[i] += mix[i]
			}
		}
	}
	return len(cb.Commands)
}

func clampInt16(v int32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
