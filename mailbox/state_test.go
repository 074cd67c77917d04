package mailbox

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/smartmail/helpers"
)

func TestObserveDistanceSequence(t *testing.T) {
	t.Parallel()
	type step struct {
		mm     uint16
		expect TransitionKind // 0 = no transition
	}
	cases := []struct {
		name  string
		steps []step
	}{
		{"baseline-only", []step{{500, 0}}},
		{"250-250-310-150", []step{{250, 0}, {250, 0}, {310, BecameFull}, {150, BecameEmpty}}},
		{"boundary-300-299", []step{{300, 0}, {299, BecameEmpty}}},
		{"boundary-299-300", []step{{299, 0}, {300, BecameFull}}},
		{"same-side-high", []step{{400, 0}, {1000, 0}, {300, 0}}},
		{"same-side-low", []step{{10, 0}, {299, 0}, {0, 0}}},
		{"oscillate", []step{{299, 0}, {300, BecameFull}, {299, BecameEmpty}, {300, BecameFull}}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			s := NewState(300)
			var prev uint16
			for i, st := range c.steps {
				tr, ok := s.ObserveDistance(st.mm)
				if st.expect == 0 {
					assert.False(t, ok, "step=%d mm=%d transition=%#v", i, st.mm, tr)
				} else {
					require.True(t, ok, "step=%d mm=%d", i, st.mm)
					assert.Equal(t, Transition{Kind: st.expect, Previous: prev, Current: st.mm}, tr)
				}
				prev = st.mm
				last, set := s.Distance()
				assert.True(t, set)
				assert.Equal(t, st.mm, last)
			}
		})
	}
}

func TestThresholdLaw(t *testing.T) {
	t.Parallel()
	rnd := helpers.RandUnix()
	for i := 0; i < 1000; i++ {
		threshold := uint16(1 + rnd.Intn(2000))
		v0, v1 := uint16(rnd.Intn(3000)), uint16(rnd.Intn(3000))
		s := NewState(threshold)
		_, ok := s.ObserveDistance(v0)
		require.False(t, ok)
		tr, ok := s.ObserveDistance(v1)
		switch {
		case v0 < threshold && threshold <= v1:
			assert.True(t, ok)
			assert.Equal(t, BecameFull, tr.Kind)
		case v1 < threshold && threshold <= v0:
			assert.True(t, ok)
			assert.Equal(t, BecameEmpty, tr.Kind)
		default:
			assert.False(t, ok, "T=%d v0=%d v1=%d", threshold, v0, v1)
		}
	}
}

func TestDefaultThreshold(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultThreshold, NewState(0).Threshold())
	assert.Equal(t, uint16(120), NewState(120).Threshold())
}

func TestObserveConcurrent(t *testing.T) {
	t.Parallel()
	const N = 64
	const threshold = 300
	s := NewState(threshold)

	type result struct {
		mm uint16
		tr Transition
		ok bool
	}
	results := make(chan result, N)
	observed := make(map[uint16]bool, N)
	wg := sync.WaitGroup{}
	wg.Add(N)
	for i := 0; i < N; i++ {
		// distinct values on both sides of threshold
		mm := uint16(250 + i*2)
		if i%2 == 1 {
			mm = uint16(100 + i)
		}
		observed[mm] = true
		go func(mm uint16) {
			defer wg.Done()
			tr, ok := s.ObserveDistance(mm)
			results <- result{mm, tr, ok}
		}(mm)
	}
	wg.Wait()
	close(results)

	last, _ := s.Distance()
	require.True(t, observed[last])

	// every stored value is replaced at most once, the last one never
	previous := make(map[uint16]bool, N)
	full, empty := 0, 0
	for r := range results {
		if !r.ok {
			continue
		}
		assert.Equal(t, r.mm, r.tr.Current)
		assert.True(t, observed[r.tr.Previous], "previous=%d was never observed", r.tr.Previous)
		assert.False(t, previous[r.tr.Previous], "previous=%d reported twice", r.tr.Previous)
		previous[r.tr.Previous] = true
		switch r.tr.Kind {
		case BecameFull:
			full++
			assert.True(t, r.tr.Previous < threshold && threshold <= r.tr.Current, "%#v", r.tr)
		case BecameEmpty:
			empty++
			assert.True(t, r.tr.Current < threshold && threshold <= r.tr.Previous, "%#v", r.tr)
		}
	}
	assert.False(t, previous[last], "last value=%d reported as previous", last)
	// sides alternate in any serial order
	assert.LessOrEqual(t, full-empty, 1)
	assert.LessOrEqual(t, empty-full, 1)
	assert.NotZero(t, full+empty)
}

func TestAuxSlots(t *testing.T) {
	t.Parallel()
	s := NewState(300)
	_, ok := s.Temperature()
	assert.False(t, ok)
	_, ok = s.Voltage()
	assert.False(t, ok)

	s.SetTemperature(23.5)
	s.SetTemperature(21)
	s.SetVoltage(3.78)
	temp, ok := s.Temperature()
	assert.True(t, ok)
	assert.Equal(t, float32(21), temp)
	volts, ok := s.Voltage()
	assert.True(t, ok)
	assert.Equal(t, float32(3.78), volts)

	// aux slots never touch distance state
	_, ok = s.Distance()
	assert.False(t, ok)
}

func TestMessage(t *testing.T) {
	t.Parallel()
	s := NewState(300)
	// distance grows when mail is taken out
	up := Transition{Kind: BecameFull, Previous: 250, Current: 317}
	down := Transition{Kind: BecameEmpty, Previous: 317, Current: 150}

	assert.Equal(t, "\U0001F4ED Mailbox was emptied. Distance changed from 25.0cm to 31.7cm.", s.Message(up))
	assert.Equal(t, "\U0001F4EC Mailbox is full! Distance changed from 31.7cm to 15.0cm.", s.Message(down))

	s.SetVoltage(3.78)
	assert.Equal(t, "\U0001F4ED Mailbox was emptied. Distance changed from 25.0cm to 31.7cm.", s.Message(up), "stats need both values")

	s.SetTemperature(23)
	assert.Equal(t, "\U0001F4EC Mailbox is full! Distance changed from 31.7cm to 15.0cm. (_Voltage: 3.78V, temperature: 23°C._)", s.Message(down))

	assert.Panics(t, func() { s.Message(Transition{}) })
}
