// Package player runs a playback session: it owns the ingest buffer, the
// decode gateway, the frame queue and the audio mixer for one stream, and
// drives them from an audio-clock-paced presentation scheduler.
package player

// State is the scheduler state.
type State int32

const (
	Running State = iota
	CancelRequested
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case CancelRequested:
		return "cancel-requested"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// CancelReason records why playback was cancelled.
type CancelReason int32

const (
	CancelNone CancelReason = iota
	CancelUser
	CancelReset
)

func (r CancelReason) String() string {
	switch r {
	case CancelNone:
		return "none"
	case CancelUser:
		return "user"
	case CancelReset:
		return "reset"
	}
	return "unknown"
}

// ResetMask is the reserved button combination (A, B, X, Y and Start)
// that requests a reset. It must match exactly.
const ResetMask uint32 = 0x060E

// classify maps a polled button mask to a cancel reason. A zero combo
// disables user cancellation; the reset combination wins over it.
func classify(mask, combo uint32) CancelReason {
	if mask == ResetMask {
		return CancelReset
	}
	if combo != 0 && mask&combo == combo {
		return CancelUser
	}
	return CancelNone
}
