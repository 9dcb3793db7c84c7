package sensor

import (
	"testing"
	"time"
)

func TestSensorBasic(t *testing.T) {
	s := NewSensor(t.TempDir(), 50*time.Millisecond)
	s.Start()
	defer s.Stop()

	// wait for at least one sample
	time.Sleep(120 * time.Millisecond)
	snap := s.Snapshot()
	if snap.Timestamp.IsZero() {
		t.Fatalf("expected non-zero snapshot timestamp")
	}
	if snap.MemTotal == 0 {
		t.Fatalf("expected non-zero memory stats")
	}
}

func TestGateDisabled(t *testing.T) {
	g := NewGate(NewSensor(t.TempDir(), time.Second), 0)
	if !g.AllowWrites() {
		t.Fatalf("gate with zero min free should always allow writes")
	}
}

func TestGateHysteresis(t *testing.T) {
	g := NewGate(nil, 1000)
	g.Hysteresis = 100
	g.RecoveryWindow = time.Minute

	now := time.Now()
	if !g.evaluate(5000, now) {
		t.Fatalf("expected open gate with ample free space")
	}
	if g.evaluate(500, now) {
		t.Fatalf("expected gate to close below min free")
	}
	// above min but within hysteresis band: stays closed
	if g.evaluate(1050, now) {
		t.Fatalf("gate should stay closed inside hysteresis band")
	}
	// healthy, but recovery window not yet elapsed
	if g.evaluate(2000, now) {
		t.Fatalf("gate should stay closed until recovery window elapses")
	}
	// a dip resets the healthy clock
	if g.evaluate(500, now.Add(30*time.Second)) {
		t.Fatalf("dip should keep gate closed")
	}
	if g.evaluate(2000, now.Add(31*time.Second)) {
		t.Fatalf("healthy clock should restart after dip")
	}
	if !g.evaluate(2000, now.Add(31*time.Second+time.Minute)) {
		t.Fatalf("gate should reopen after sustained recovery")
	}
}
