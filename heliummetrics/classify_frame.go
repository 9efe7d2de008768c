package heliummetrics

import (
	"errors"

	"github.com/helium/carbon/frame"
)

// classifyFrameErr maps a frame-layer sentinel error to a stable metric
// label, falling back to ErrOther for anything it does not recognize.
func classifyFrameErr(err error) string {
	switch {
	case errors.Is(err, frame.ErrTimeout):
		return ErrTimeout
	case errors.Is(err, frame.ErrChecksum):
		return ErrChecksum
	case errors.Is(err, frame.ErrOverflow):
		return ErrOverflow
	case errors.Is(err, frame.ErrPortRead):
		return ErrPortRead
	case errors.Is(err, frame.ErrPortWrite):
		return ErrPortWrite
	default:
		return ErrOther
	}
}
