package control

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SymlonCheung/ocr-water-heater/internal/actuator"
	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
)

// fakeTransport records every send. failAll makes every send fail.
type fakeTransport struct {
	mu       sync.Mutex
	payloads []string
	failAll  bool
}

func (f *fakeTransport) Send(_ context.Context, _ actuator.Method, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return fmt.Errorf("transport down")
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.payloads))
	copy(out, f.payloads)
	return out
}

// fakePoller serves a scripted sequence of states, repeating the last one.
type fakePoller struct {
	mu     sync.Mutex
	states []fusion.State
	idx    int
}

func (f *fakePoller) PollOnce(context.Context) (fusion.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.states[f.idx]
	if f.idx < len(f.states)-1 {
		f.idx++
	}
	return st, nil
}

var testPayloads = actuator.Payloads{
	ScreenOn: "screen",
	TempUp:   "up",
	TempDown: "down",
	Toggle:   "toggle",
	Mode:     "mode",
}

func testSequencer(transport actuator.Transport, coord *fusion.Coordinator, poller Poller) *Sequencer {
	return NewSequencer(Config{
		ReadSamples: 3,
		ReadDelay:   time.Millisecond,
		SettleDelay: time.Millisecond,
		ValidMin:    10,
		ValidMax:    80,
	}, actuator.NewCommands(transport, testPayloads), coord, poller, nil, nil)
}

// settingCoordinator returns a coordinator already showing the setting
// screen, so temperature steps need no activation press.
func settingCoordinator(temp int) *fusion.Coordinator {
	c := fusion.NewCoordinator(fusion.Config{OffConfirmTicks: 8, SettingBridge: 8 * time.Second, StandbyBridge: 2 * time.Second, BootGrace: 5 * time.Second})
	c.Tick(fusion.Observation{Reading: temp, HasReading: true, Icon: fusion.ModeSetting}, time.Now())
	return c
}

func settingState(temp int) fusion.State {
	return fusion.State{Temperature: temp, HasTemperature: true, Mode: fusion.ModeSetting}
}

func TestMajoritySample(t *testing.T) {
	tests := []struct {
		name    string
		samples []int
		hint    int
		want    int
	}{
		{name: "outright_majority", samples: []int{45, 45, 46}, hint: 0, want: 45},
		{name: "all_distinct_closest_to_hint", samples: []int{44, 45, 46}, hint: 46, want: 46},
		{name: "tie_keeps_earliest", samples: []int{44, 46}, hint: 45, want: 44},
		{name: "single_sample", samples: []int{50}, hint: 10, want: 50},
		{name: "split_pair_majority", samples: []int{45, 45, 46, 46, 45}, hint: 46, want: 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := majoritySample(tt.samples, tt.hint); got != tt.want {
				t.Fatalf("majoritySample(%v, %d) = %d, want %d", tt.samples, tt.hint, got, tt.want)
			}
		})
	}
}

func TestModeRotation(t *testing.T) {
	tests := []struct {
		name     string
		from, to fusion.Mode
		want     int
	}{
		{name: "low_to_half", from: fusion.ModeLow, to: fusion.ModeHalf, want: 1},
		{name: "low_to_full", from: fusion.ModeLow, to: fusion.ModeFull, want: 2},
		{name: "full_to_low", from: fusion.ModeFull, to: fusion.ModeLow, want: 1},
		{name: "half_to_half", from: fusion.ModeHalf, to: fusion.ModeHalf, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := modeRotation(tt.from, tt.to); got != tt.want {
				t.Fatalf("modeRotation(%v, %v) = %d, want %d", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestReliableRead(t *testing.T) {
	transport := &fakeTransport{}
	poller := &fakePoller{states: []fusion.State{
		settingState(45),
		{Mode: fusion.ModeStandby}, // one unreadable sample
		settingState(45),
	}}
	s := testSequencer(transport, settingCoordinator(45), poller)

	got, err := s.ReliableRead(context.Background(), 40)
	if err != nil {
		t.Fatalf("ReliableRead: %v", err)
	}
	if got != 45 {
		t.Fatalf("ReliableRead = %d, want 45", got)
	}
}

func TestStepTemperatureUp(t *testing.T) {
	transport := &fakeTransport{}
	poller := &fakePoller{states: []fusion.State{settingState(45)}}
	s := testSequencer(transport, settingCoordinator(45), poller)

	if err := s.stepTemperature(context.Background(), 48, 45); err != nil {
		t.Fatalf("stepTemperature: %v", err)
	}

	// Panel already on the setting screen: exactly the delta, no
	// activation press.
	want := []string{"up", "up", "up"}
	got := transport.sent()
	if len(got) != len(want) {
		t.Fatalf("sends = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sends = %v, want %v", got, want)
		}
	}
}

func TestStepTemperatureActivation(t *testing.T) {
	transport := &fakeTransport{}
	poller := &fakePoller{states: []fusion.State{settingState(45)}}

	// Coordinator in a non-setting mode: the first press only wakes the
	// setting screen.
	coord := fusion.NewCoordinator(fusion.Config{OffConfirmTicks: 8, SettingBridge: 8 * time.Second, StandbyBridge: 2 * time.Second, BootGrace: 5 * time.Second})
	coord.Tick(fusion.Observation{Reading: 45, HasReading: true, Icon: fusion.ModeLow}, time.Now())

	s := testSequencer(transport, coord, poller)
	if err := s.stepTemperature(context.Background(), 43, 45); err != nil {
		t.Fatalf("stepTemperature: %v", err)
	}

	// One activation press (downward, toward the target), then two real
	// steps from the read-back value 45 to 43.
	got := transport.sent()
	if len(got) != 3 {
		t.Fatalf("sends = %v, want activation + 2 steps", got)
	}
	for i, p := range got {
		if p != "down" {
			t.Fatalf("send %d = %q, want down", i, p)
		}
	}
}

func TestSetTargetTemperatureRejectsOutOfRange(t *testing.T) {
	s := testSequencer(&fakeTransport{}, settingCoordinator(45), &fakePoller{states: []fusion.State{settingState(45)}})

	if err := s.SetTargetTemperature(context.Background(), 95); err == nil {
		t.Fatal("expected range error")
	}
	if err := s.SetTargetTemperature(context.Background(), 5); err == nil {
		t.Fatal("expected range error")
	}
}

func waitIdle(t *testing.T, s *Sequencer) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Busy() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("sequencer still busy")
}

func TestSupersededTargetWins(t *testing.T) {
	transport := &fakeTransport{}
	poller := &fakePoller{states: []fusion.State{settingState(45)}}
	s := testSequencer(transport, settingCoordinator(45), poller)

	ctx := context.Background()
	if err := s.SetTargetTemperature(ctx, 50); err != nil {
		t.Fatalf("first target: %v", err)
	}
	if err := s.SetTargetTemperature(ctx, 55); err != nil {
		t.Fatalf("second target: %v", err)
	}

	waitIdle(t, s)

	temp, _ := s.Targets()
	if temp != 55 {
		t.Fatalf("target after supersession = %d, want 55", temp)
	}
}

func TestFailedAdjustmentRollsBack(t *testing.T) {
	transport := &fakeTransport{failAll: true}
	poller := &fakePoller{states: []fusion.State{settingState(45)}}
	s := testSequencer(transport, settingCoordinator(45), poller)

	if err := s.SetTargetTemperature(context.Background(), 50); err != nil {
		t.Fatalf("accept: %v", err)
	}
	waitIdle(t, s)

	// The task failed outright and still owned the axis: the visible
	// target reverts to the prior value.
	temp, _ := s.Targets()
	if temp != 10 {
		t.Fatalf("target after failure = %d, want initial %d", temp, 10)
	}
}

func TestSetPowerGuards(t *testing.T) {
	transport := &fakeTransport{}
	s := testSequencer(transport, settingCoordinator(45), &fakePoller{states: []fusion.State{settingState(45)}})

	// Display is visibly on: a redundant power-on must not toggle.
	if err := s.SetPower(context.Background(), true); err != nil {
		t.Fatalf("SetPower: %v", err)
	}
	if len(transport.sent()) != 0 {
		t.Fatalf("redundant power-on sent %v", transport.sent())
	}

	// Off request against an on display sends the toggle.
	if err := s.SetPower(context.Background(), false); err != nil {
		t.Fatalf("SetPower off: %v", err)
	}
	got := transport.sent()
	if len(got) != 1 || got[0] != "toggle" {
		t.Fatalf("sends = %v, want single toggle", got)
	}
}

func TestSetTargetModeRotates(t *testing.T) {
	transport := &fakeTransport{}
	poller := &fakePoller{states: []fusion.State{settingState(45)}}

	coord := fusion.NewCoordinator(fusion.Config{OffConfirmTicks: 8, SettingBridge: 8 * time.Second, StandbyBridge: 2 * time.Second, BootGrace: 5 * time.Second})
	coord.Tick(fusion.Observation{Reading: 45, HasReading: true, Icon: fusion.ModeLow}, time.Now())

	s := testSequencer(transport, coord, poller)
	if err := s.SetTargetMode(context.Background(), fusion.ModeFull); err != nil {
		t.Fatalf("SetTargetMode: %v", err)
	}
	waitIdle(t, s)

	got := transport.sent()
	if len(got) != 2 {
		t.Fatalf("sends = %v, want 2 mode presses", got)
	}
	for i, p := range got {
		if p != "mode" {
			t.Fatalf("send %d = %q, want mode", i, p)
		}
	}

	_, mode := s.Targets()
	if mode != fusion.ModeFull {
		t.Fatalf("target mode = %v, want full", mode)
	}
}

func TestSetTargetModeRejectsNonPower(t *testing.T) {
	s := testSequencer(&fakeTransport{}, settingCoordinator(45), &fakePoller{states: []fusion.State{settingState(45)}})

	if err := s.SetTargetMode(context.Background(), fusion.ModeSetting); err == nil {
		t.Fatal("expected error for non-power mode")
	}
}
