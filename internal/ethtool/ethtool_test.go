package ethtool

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shiwa/timecard-mini/synce/internal/synce"
)

func TestParseSettings(t *testing.T) {
	buf := make([]byte, linkSettingsLen)
	binary.NativeEndian.PutUint32(buf[offSpeed:], 10000)
	buf[offPort] = portFibre
	buf[offMSCfg] = msCfgSlavePreferred
	buf[offMSState] = msStateMaster

	s := parseSettings(buf)
	if s.speed != 10000 || !s.fiber || s.msCfg != msCfgSlavePreferred || s.msState != msStateMaster {
		t.Errorf("parseSettings = %+v", s)
	}

	binary.NativeEndian.PutUint32(buf[offSpeed:], speedUnknow)
	buf[offPort] = 0
	if s := parseSettings(buf); s.speed != 0 || s.fiber {
		t.Errorf("unknown speed: %+v", s)
	}
}

func TestLinkStatus(t *testing.T) {
	buf := make([]byte, linkSettingsLen)
	binary.NativeEndian.PutUint32(buf[offSpeed:], 1000)
	buf[offPort] = portFibre

	tests := []struct {
		name string
		up   bool
		buf  []byte
		want synce.LinkStatus
	}{
		{"settings read", true, buf, synce.LinkStatus{Up: true, Speed: 1000, Fiber: true}},
		{"no link settings, up", true, nil, synce.LinkStatus{Up: true}},
		{"no link settings, down", false, nil, synce.LinkStatus{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := linkStatus(tt.up, tt.buf); got != tt.want {
				t.Errorf("linkStatus = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestManualNegMapping(t *testing.T) {
	tests := []struct {
		neg     synce.ManualNeg
		initial uint8
		want    uint8
	}{
		{synce.NegRef, msCfgSlavePreferred, msCfgMasterForce},
		{synce.NegClient, msCfgMasterPreferred, msCfgSlaveForce},
		{synce.NegDisabled, msCfgSlavePreferred, msCfgSlavePreferred},
		{synce.NegDisabled, msCfgSlaveForce, msCfgMasterPreferred},
		{synce.NegDisabled, msCfgUnknown, msCfgMasterPreferred},
	}
	for _, tt := range tests {
		t.Run(tt.neg.String(), func(t *testing.T) {
			got := cfgFromNeg(tt.neg, tt.initial)
			if got != tt.want {
				t.Errorf("cfgFromNeg(%v, %d) = %d, want %d", tt.neg, tt.initial, got, tt.want)
			}
			if back := negFromCfg(got); back != tt.neg {
				t.Errorf("negFromCfg(%d) = %v", got, back)
			}
		})
	}
}

type scriptedLinks struct {
	mu    sync.Mutex
	state []synce.LinkStatus
	fail  []bool
}

func (s *scriptedLinks) Link(port int) (synce.LinkStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[port] {
		return synce.LinkStatus{Up: true}, errors.New("ioctl failed")
	}
	return s.state[port], nil
}

func (s *scriptedLinks) set(port int, ls synce.LinkStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[port] = ls
}

type linkEvent struct {
	port int
	ls   synce.LinkStatus
}

func TestWatch(t *testing.T) {
	r := &scriptedLinks{
		state: []synce.LinkStatus{{Up: true, Speed: 1000}, {}},
		fail:  []bool{false, true},
	}
	events := make(chan linkEvent, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Watch(ctx, r, 2, 5*time.Millisecond, func(p int, ls synce.LinkStatus) {
			events <- linkEvent{p, ls}
		})
		close(done)
	}()

	next := func() linkEvent {
		t.Helper()
		select {
		case ev := <-events:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("no link event")
		}
		return linkEvent{}
	}

	first := []linkEvent{next(), next()}
	if first[0].port != 0 || !first[0].ls.Up {
		t.Errorf("first event %+v", first[0])
	}
	if first[1].port != 1 || first[1].ls.Up {
		t.Errorf("read error must report link down, got %+v", first[1])
	}

	r.set(0, synce.LinkStatus{Up: true, Speed: 100})
	if ev := next(); ev.port != 0 || ev.ls.Speed != 100 {
		t.Errorf("speed change event %+v", ev)
	}

	cancel()
	<-done
	select {
	case ev := <-events:
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}

func TestStatic(t *testing.T) {
	var s Static
	ls, err := s.Link(3)
	if err != nil || !ls.Up || ls.Speed != 1000 || ls.Fiber {
		t.Errorf("Static.Link = %+v, %v", ls, err)
	}
	if m, _ := s.AnegMaster(3); m {
		t.Error("Static reports aneg master")
	}
}
