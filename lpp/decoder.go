package lpp

import (
	"encoding/binary"
	"fmt"

	"github.com/temoto/smartmail/log2"
)

// Anomaly kinds, reported by Decoder.Anomaly() after the sequence stops early.
const (
	AnomalyIncompleteType = "incomplete_type"
	AnomalyIncompleteData = "incomplete_data"
	AnomalyUnknownType    = "unknown_type"
)

type AnomalyError struct {
	Kind    string
	Channel Channel
	Type    byte
	Offset  int
}

func (e *AnomalyError) Error() string {
	switch e.Kind {
	case AnomalyIncompleteType:
		return fmt.Sprintf("lpp: incomplete data from channel %s offset=%d", e.Channel, e.Offset)
	case AnomalyIncompleteData:
		return fmt.Sprintf("lpp: incomplete type=%#02x data from channel %s offset=%d", e.Type, e.Channel, e.Offset)
	default:
		return fmt.Sprintf("lpp: unknown data type=%#02x from channel %s offset=%d", e.Type, e.Channel, e.Offset)
	}
}

// Decoder is a cursor over one payload buffer.
// Anomalies never surface through Next: they end the sequence,
// are logged at warning level and are remembered for Anomaly().
// Decoder is not safe for concurrent use.
type Decoder struct {
	b       []byte
	pos     int
	done    bool
	anomaly *AnomalyError
	log     *log2.Log
}

func NewDecoder(b []byte, log *log2.Log) *Decoder {
	return &Decoder{b: b, log: log}
}

// Next returns the next measurement, ok=false at end of sequence.
func (self *Decoder) Next() (Measurement, bool) {
	if self.done {
		return Measurement{}, false
	}
	if self.pos >= len(self.b) {
		self.done = true
		return Measurement{}, false
	}
	start := self.pos
	channel := ChannelFromByte(self.b[self.pos])
	self.pos++

	if self.pos >= len(self.b) {
		return self.stop(&AnomalyError{Kind: AnomalyIncompleteType, Channel: channel, Offset: start})
	}
	typ := self.b[self.pos]
	self.pos++

	switch typ {
	case TypeAnalogInput, TypeTemperature, TypeDistance:
	default:
		return self.stop(&AnomalyError{Kind: AnomalyUnknownType, Channel: channel, Type: typ, Offset: start})
	}
	if len(self.b)-self.pos < payloadWidth {
		return self.stop(&AnomalyError{Kind: AnomalyIncompleteData, Channel: channel, Type: typ, Offset: start})
	}
	hi, lo := self.b[self.pos], self.b[self.pos+1]
	self.pos += payloadWidth

	var v Value
	switch typ {
	case TypeAnalogInput:
		v = AnalogInput(float32(int16(binary.BigEndian.Uint16([]byte{hi, lo}))) / 100.0)
	case TypeTemperature:
		v = Temperature(float32(int16(binary.BigEndian.Uint16([]byte{hi, lo}))) / 10.0)
	case TypeDistance:
		v = Distance(uint16(hi)*256 + uint16(lo))
	}
	return Measurement{Channel: channel, Value: v}, true
}

func (self *Decoder) stop(a *AnomalyError) (Measurement, bool) {
	self.done = true
	self.anomaly = a
	self.log.Warningf("%s", a.Error())
	return Measurement{}, false
}

// Anomaly is nil after clean end of input or while sequence is not finished.
func (self *Decoder) Anomaly() error {
	if self.anomaly == nil {
		return nil
	}
	return self.anomaly
}

// Reset restarts the sequence from the first byte.
func (self *Decoder) Reset() {
	self.pos = 0
	self.done = false
	self.anomaly = nil
}

// All drains the decoder from its current position.
func (self *Decoder) All() []Measurement {
	ms := make([]Measurement, 0, len(self.b)/4)
	for {
		m, ok := self.Next()
		if !ok {
			return ms
		}
		ms = append(ms, m)
	}
}

// Decode is shortcut for NewDecoder(b, log).All()
func Decode(b []byte, log *log2.Log) []Measurement {
	return NewDecoder(b, log).All()
}

// First returns the first measurement matching channel and value kinds, later ones are not decoded.
func (self *Decoder) First(channel ChannelKind, value ValueKind) (Measurement, bool) {
	for {
		m, ok := self.Next()
		if !ok {
			return Measurement{}, false
		}
		if m.Channel.Kind == channel && m.Value.Kind == value {
			return m, true
		}
	}
}
