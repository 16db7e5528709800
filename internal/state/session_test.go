package state

import "testing"

func TestNewSessionInitialValues(t *testing.T) {
	s := NewSession()
	snap := s.Snapshot()
	if snap.LastActiveTab != NoTab {
		t.Fatalf("expected no last tab, got %q", snap.LastActiveTab)
	}
	if snap.LastActiveWindow != WindowNone {
		t.Fatalf("expected WindowNone, got %d", snap.LastActiveWindow)
	}
	if snap.Power != PowerActive {
		t.Fatalf("expected active power state, got %q", snap.Power)
	}
}

func TestSessionSetters(t *testing.T) {
	s := NewSession()
	s.SetLastActiveTab("tab-1")
	s.SetLastActiveWindow(3)
	s.SetPower(PowerLocked)
	want := SessionSnapshot{LastActiveTab: "tab-1", LastActiveWindow: 3, Power: PowerLocked}
	if got := s.Snapshot(); got != want {
		t.Fatalf("snapshot = %+v, want %+v", got, want)
	}
}

func TestParsePowerState(t *testing.T) {
	for _, input := range []string{"active", "idle", "locked"} {
		if _, err := ParsePowerState(input); err != nil {
			t.Fatalf("ParsePowerState(%q) returned error: %v", input, err)
		}
	}
	if _, err := ParsePowerState("asleep"); err == nil {
		t.Fatalf("expected error for unknown power state")
	}
}
