// Package lpp decodes the subset of Cayenne Low Power Payload used by the
// mailbox sensor: [channel][type][2 bytes big-endian] records back to back,
// no length prefix.
package lpp

import (
	"fmt"
	"strconv"
)

// Channel is the per-measurement source tag inside one payload.
type Channel struct {
	Kind ChannelKind
	Raw  byte
}

type ChannelKind uint8

const (
	ChannelOther ChannelKind = iota
	ChannelDistanceSensor
	ChannelAdc
)

const (
	ChannelIDDistanceSensor byte = 1
	ChannelIDAdc            byte = 4
)

// ChannelFromByte never fails: unknown ids map to ChannelOther.
func ChannelFromByte(b byte) Channel {
	switch b {
	case ChannelIDDistanceSensor:
		return Channel{Kind: ChannelDistanceSensor, Raw: b}
	case ChannelIDAdc:
		return Channel{Kind: ChannelAdc, Raw: b}
	default:
		return Channel{Kind: ChannelOther, Raw: b}
	}
}

func (c Channel) String() string {
	switch c.Kind {
	case ChannelDistanceSensor:
		return "DistanceSensor"
	case ChannelAdc:
		return "AdcInput"
	default:
		return "Other(" + strconv.Itoa(int(c.Raw)) + ")"
	}
}

// Data type tags.
const (
	TypeAnalogInput byte = 0x02
	TypeTemperature byte = 0x67
	TypeDistance    byte = 0x82
)

const payloadWidth = 2

type ValueKind uint8

const (
	ValueAnalogInput ValueKind = iota + 1
	ValueTemperature
	ValueDistance
)

func (k ValueKind) String() string {
	switch k {
	case ValueAnalogInput:
		return "AnalogInput"
	case ValueTemperature:
		return "Temperature"
	case ValueDistance:
		return "Distance"
	default:
		return "ValueKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a decoded physical quantity. Only the field matching Kind is meaningful.
type Value struct {
	Kind ValueKind
	// volts for AnalogInput, degrees Celsius for Temperature
	Float float32
	// millimeters for Distance
	Distance uint16
}

func AnalogInput(volts float32) Value { return Value{Kind: ValueAnalogInput, Float: volts} }
func Temperature(celsius float32) Value { return Value{Kind: ValueTemperature, Float: celsius} }
func Distance(millimeters uint16) Value { return Value{Kind: ValueDistance, Distance: millimeters} }

func (v Value) String() string {
	switch v.Kind {
	case ValueAnalogInput, ValueTemperature:
		return fmt.Sprintf("%s(%s)", v.Kind, strconv.FormatFloat(float64(v.Float), 'f', -1, 32))
	case ValueDistance:
		return fmt.Sprintf("%s(%d)", v.Kind, v.Distance)
	default:
		return v.Kind.String()
	}
}

type Measurement struct {
	Channel Channel
	Value   Value
}

func (m Measurement) String() string {
	return fmt.Sprintf("(%s, %s)", m.Channel, m.Value)
}
