package vectorio

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Offset is an absolute false origin.
type Offset struct {
	X, Y, Z float64
}

// CoordinateOffset holds the false origin of one run. It starts out unset and is
// fixed by the first call to GetOrInit; afterwards it never changes.
type CoordinateOffset struct {
	value Offset
	set   bool
}

// NewCoordinateOffset returns an offset that is already fixed at o. Use it to
// continue a run whose origin is known in advance.
func NewCoordinateOffset(o Offset) *CoordinateOffset {
	return &CoordinateOffset{value: o, set: true}
}

// IsSet reports whether the origin has been fixed.
func (c *CoordinateOffset) IsSet() bool {
	return c.set
}

// Value returns the origin and whether it has been fixed.
func (c *CoordinateOffset) Value() (Offset, bool) {
	return c.value, c.set
}

// GetOrInit returns the origin, fixing it at (x, y, z) if it was still unset.
func (c *CoordinateOffset) GetOrInit(x, y, z float64) Offset {
	if !c.set {
		c.value = Offset{X: x, Y: y, Z: z}
		c.set = true
	}
	return c.value
}

// ToLocal converts an absolute coordinate into the local frame. The offset must
// have been initialised; an unset offset behaves as the zero origin.
func (c *CoordinateOffset) ToLocal(x, y, z float64) Point3 {
	return Point3{
		float32(x - c.value.X),
		float32(y - c.value.Y),
		float32(z - c.value.Z),
	}
}

// ToAbsolute converts a local coordinate back into the absolute frame.
func (c *CoordinateOffset) ToAbsolute(p Point3) [3]float64 {
	return [3]float64{
		float64(p[0]) + c.value.X,
		float64(p[1]) + c.value.Y,
		float64(p[2]) + c.value.Z,
	}
}

// RunContext is the state shared by every reader and writer taking part in one
// run: the false origin, the logger and an identifier for log correlation.
type RunContext struct {
	ID     string
	Offset *CoordinateOffset
	Log    logrus.FieldLogger
}

// NewRunContext creates a run with an unset origin that logs through the
// standard logrus logger.
func NewRunContext() *RunContext {
	return NewRunContextWithLogger(logrus.StandardLogger())
}

// NewRunContextWithLogger creates a run that logs through log.
func NewRunContextWithLogger(log logrus.FieldLogger) *RunContext {
	id := uuid.NewString()
	return &RunContext{
		ID:     id,
		Offset: &CoordinateOffset{},
		Log:    log.WithField("run", id),
	}
}

// logger returns the run logger, falling back to the standard logger for
// hand-built contexts.
func (rc *RunContext) logger() logrus.FieldLogger {
	if rc.Log == nil {
		return logrus.StandardLogger()
	}
	return rc.Log
}

// offset returns the run offset, creating it for hand-built contexts.
func (rc *RunContext) offset() *CoordinateOffset {
	if rc.Offset == nil {
		rc.Offset = &CoordinateOffset{}
	}
	return rc.Offset
}
