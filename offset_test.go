package vectorio

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestCoordinateOffset_GetOrInit(t *testing.T) {
	var off CoordinateOffset
	if off.IsSet() {
		t.Fatal("new offset should be unset")
	}

	first := off.GetOrInit(501234.56, 6869321.10, 12.3)
	second := off.GetOrInit(1, 2, 3)
	if first != second {
		t.Errorf("offset changed after first init: %v then %v", first, second)
	}
	if v, ok := off.Value(); !ok || v.X != 501234.56 || v.Y != 6869321.10 || v.Z != 12.3 {
		t.Errorf("unexpected offset %v (set=%v)", v, ok)
	}
}

func TestCoordinateOffset_RoundTrip(t *testing.T) {
	off := NewCoordinateOffset(Offset{X: 501234.56, Y: 6869321.10, Z: 12.3})

	local := off.ToLocal(501244.56, 6869331.10, 13.3)
	want := Point3{10, 10, 1}
	for i := range want {
		if math.Abs(float64(local[i]-want[i])) > 1e-3 {
			t.Errorf("local[%d] = %v, want %v", i, local[i], want[i])
		}
	}

	abs := off.ToAbsolute(local)
	wantAbs := [3]float64{501244.56, 6869331.10, 13.3}
	for i := range wantAbs {
		if math.Abs(abs[i]-wantAbs[i]) > 1e-3 {
			t.Errorf("abs[%d] = %v, want %v", i, abs[i], wantAbs[i])
		}
	}
}

func TestRunContext(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rc := NewRunContextWithLogger(logger)
	if rc.ID == "" {
		t.Fatal("expected a run id")
	}
	if rc.Offset == nil || rc.Offset.IsSet() {
		t.Fatal("expected an unset offset")
	}

	rc.logger().Info("hello")
	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["run"] != rc.ID {
		t.Errorf("run field = %v, want %v", entry.Data["run"], rc.ID)
	}

	other := NewRunContextWithLogger(logger)
	if other.ID == rc.ID {
		t.Error("run ids should differ")
	}
}

func TestRunContext_ZeroValue(t *testing.T) {
	rc := &RunContext{}
	if rc.logger() == nil {
		t.Error("expected fallback logger")
	}
	off := rc.offset()
	off.GetOrInit(1, 2, 3)
	if !rc.Offset.IsSet() {
		t.Error("offset should be stored on the context")
	}
}
