// Package mailbox keeps the last known sensor readings and classifies
// distance changes into full/empty transitions.
package mailbox

import (
	"sync"
)

const DefaultThreshold uint16 = 300

type TransitionKind uint8

const (
	BecameFull TransitionKind = iota + 1
	BecameEmpty
)

func (k TransitionKind) String() string {
	switch k {
	case BecameFull:
		return "full"
	case BecameEmpty:
		return "empty"
	default:
		return "invalid"
	}
}

type Transition struct {
	Kind     TransitionKind
	Previous uint16
	Current  uint16
}

// State is owned by the listener and shared by reference with the dispatcher.
// Each slot has its own lock, every update is read-modify-write under that lock.
type State struct {
	threshold uint16

	distance struct {
		sync.Mutex
		v   uint16
		set bool
	}
	temperature struct {
		sync.Mutex
		v   float32
		set bool
	}
	voltage struct {
		sync.Mutex
		v   float32
		set bool
	}
}

// NewState with threshold=0 uses DefaultThreshold.
func NewState(threshold uint16) *State {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &State{threshold: threshold}
}

func (self *State) Threshold() uint16 { return self.threshold }

// ObserveDistance stores mm unconditionally and reports whether the reading
// crossed the threshold relative to the previous one.
// First observation only sets the baseline.
// Exactly threshold counts as the upper side.
func (self *State) ObserveDistance(mm uint16) (Transition, bool) {
	self.distance.Lock()
	defer self.distance.Unlock()

	prev, had := self.distance.v, self.distance.set
	self.distance.v, self.distance.set = mm, true
	if !had {
		return Transition{}, false
	}
	t := self.threshold
	switch {
	case prev < t && mm >= t:
		return Transition{Kind: BecameFull, Previous: prev, Current: mm}, true
	case prev >= t && mm < t:
		return Transition{Kind: BecameEmpty, Previous: prev, Current: mm}, true
	}
	return Transition{}, false
}

func (self *State) Distance() (uint16, bool) {
	self.distance.Lock()
	defer self.distance.Unlock()
	return self.distance.v, self.distance.set
}

func (self *State) SetTemperature(celsius float32) {
	self.temperature.Lock()
	self.temperature.v, self.temperature.set = celsius, true
	self.temperature.Unlock()
}

func (self *State) Temperature() (float32, bool) {
	self.temperature.Lock()
	defer self.temperature.Unlock()
	return self.temperature.v, self.temperature.set
}

func (self *State) SetVoltage(volts float32) {
	self.voltage.Lock()
	self.voltage.v, self.voltage.set = volts, true
	self.voltage.Unlock()
}

func (self *State) Voltage() (float32, bool) {
	self.voltage.Lock()
	defer self.voltage.Unlock()
	return self.voltage.v, self.voltage.set
}
