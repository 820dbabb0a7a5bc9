package control

import (
	"context"
	"testing"
	"time"

	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
)

func TestSyncSkipsSettingScreen(t *testing.T) {
	transport := &fakeTransport{}
	s := testSequencer(transport, settingCoordinator(45), &fakePoller{states: []fusion.State{settingState(45)}})
	s.RestoreTargets(50, fusion.ModeLow)

	s.syncOnce(context.Background())

	if len(transport.sent()) != 0 {
		t.Fatalf("sync touched the panel during setting: %v", transport.sent())
	}
}

func TestSyncCorrectsTemperatureDrift(t *testing.T) {
	transport := &fakeTransport{}
	poller := &fakePoller{states: []fusion.State{settingState(45)}}

	coord := fusion.NewCoordinator(fusion.Config{OffConfirmTicks: 8, SettingBridge: 8 * time.Second, StandbyBridge: 2 * time.Second, BootGrace: 5 * time.Second})
	coord.Tick(fusion.Observation{Reading: 45, HasReading: true, Icon: fusion.ModeLow}, time.Now())

	s := testSequencer(transport, coord, poller)
	s.RestoreTargets(50, fusion.ModeLow)

	s.syncOnce(context.Background())
	waitIdle(t, s)

	// Activation press plus five real steps from the read-back 45 to 50,
	// all upward.
	got := transport.sent()
	if len(got) != 6 {
		t.Fatalf("sends = %v, want activation + 5 steps", got)
	}
	for i, p := range got {
		if p != "up" {
			t.Fatalf("send %d = %q, want up", i, p)
		}
	}
}

func TestSyncCorrectsModeDrift(t *testing.T) {
	transport := &fakeTransport{}
	poller := &fakePoller{states: []fusion.State{settingState(45)}}

	coord := fusion.NewCoordinator(fusion.Config{OffConfirmTicks: 8, SettingBridge: 8 * time.Second, StandbyBridge: 2 * time.Second, BootGrace: 5 * time.Second})
	coord.Tick(fusion.Observation{Reading: 45, HasReading: true, Icon: fusion.ModeHalf}, time.Now())

	s := testSequencer(transport, coord, poller)
	s.RestoreTargets(45, fusion.ModeLow)

	s.syncOnce(context.Background())
	waitIdle(t, s)

	// HALF to LOW is two forward presses on the rotating mode button.
	got := transport.sent()
	if len(got) != 2 {
		t.Fatalf("sends = %v, want 2 mode presses", got)
	}
	for i, p := range got {
		if p != "mode" {
			t.Fatalf("send %d = %q, want mode", i, p)
		}
	}
}
