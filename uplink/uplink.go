// Package uplink parses The Things Network (v2 MQTT API) messages.
package uplink

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

var reDataRate = regexp.MustCompile(`^SF(\d+)BW(\d+)$`)

type Uplink struct {
	AppID  string
	DevID  string
	DevEUI string // hardware_serial
	Port   uint32
	// raw LPP bytes, base64 already decoded
	Payload []byte
	Meta    Meta
}

// Meta fields are optional, nil when absent from the message.
type Meta struct {
	Counter         *uint32
	Airtime         *uint64
	DataRate        string
	SpreadingFactor *uint8
	Bandwidth       *uint16
}

type wireUplink struct {
	AppID          string           `json:"app_id"`
	DevID          string           `json:"dev_id"`
	HardwareSerial *string          `json:"hardware_serial"`
	Port           *json.RawMessage `json:"port"`
	Counter        *json.RawMessage `json:"counter"`
	PayloadRaw     *string          `json:"payload_raw"`
	Metadata       *struct {
		Airtime  *json.RawMessage `json:"airtime"`
		DataRate *string          `json:"data_rate"`
	} `json:"metadata"`
}

// Parse returns errors.NotValid for malformed envelopes.
func Parse(b []byte) (*Uplink, error) {
	var w wireUplink
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, errors.NewNotValid(err, "uplink json")
	}
	if w.Port == nil {
		return nil, errors.NotValidf("uplink does not contain \"port\" field")
	}
	port, err := parseUint(*w.Port, 32)
	if err != nil {
		return nil, errors.NewNotValid(err, "uplink \"port\" field does not contain a number")
	}
	if w.PayloadRaw == nil {
		return nil, errors.NotValidf("uplink does not contain \"payload_raw\" field")
	}
	payload, err := base64.StdEncoding.DecodeString(*w.PayloadRaw)
	if err != nil {
		return nil, errors.NewNotValid(err, "uplink raw payload is not valid base64")
	}
	if w.HardwareSerial == nil {
		return nil, errors.NotValidf("uplink does not contain \"hardware_serial\" field")
	}

	u := &Uplink{
		AppID:   w.AppID,
		DevID:   w.DevID,
		DevEUI:  *w.HardwareSerial,
		Port:    uint32(port),
		Payload: payload,
	}
	if w.Counter != nil {
		counter, err := parseUint(*w.Counter, 32)
		if err != nil {
			return nil, errors.NewNotValid(err, "uplink \"counter\" field does not contain a number")
		}
		c32 := uint32(counter)
		u.Meta.Counter = &c32
	}
	if md := w.Metadata; md != nil {
		if md.Airtime != nil {
			airtime, err := parseUint(*md.Airtime, 64)
			if err != nil {
				return nil, errors.NewNotValid(err, "uplink \"metadata.airtime\" field does not contain a number")
			}
			u.Meta.Airtime = &airtime
		}
		if md.DataRate != nil {
			u.Meta.DataRate = *md.DataRate
			u.Meta.SpreadingFactor, u.Meta.Bandwidth = ParseDataRate(*md.DataRate)
		}
	}
	return u, nil
}

// ParseDataRate("SF7BW125") = 7, 125
// Unparseable parts are nil.
func ParseDataRate(s string) (*uint8, *uint16) {
	m := reDataRate.FindStringSubmatch(s)
	if m == nil {
		return nil, nil
	}
	var sf *uint8
	var bw *uint16
	if x, err := strconv.ParseUint(m[1], 10, 8); err == nil {
		v := uint8(x)
		sf = &v
	}
	if x, err := strconv.ParseUint(m[2], 10, 16); err == nil {
		v := uint16(x)
		bw = &v
	}
	return sf, bw
}

func parseUint(raw json.RawMessage, bitSize int) (uint64, error) {
	s := strings.TrimSpace(string(raw))
	return strconv.ParseUint(s, 10, bitSize)
}

// Tags for raw metadata metrics.
func (u *Uplink) Tags() string {
	return "deveui=" + u.DevEUI + ",port=" + strconv.FormatUint(uint64(u.Port), 10)
}

// DeviceTags for decoded measurement metrics.
func (u *Uplink) DeviceTags() string { return "deveui=" + u.DevEUI }

type Activation struct {
	AppID   string `json:"app_id"`
	DevID   string `json:"dev_id"`
	DevEUI  string `json:"dev_eui"`
	DevAddr string `json:"dev_addr"`
}

func ParseActivation(b []byte) (*Activation, error) {
	var a Activation
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, errors.NewNotValid(err, "activation json")
	}
	return &a, nil
}

// Topic kinds in TTN v2 MQTT API: <app>/devices/<dev>/up, <app>/devices/<dev>/activations
const (
	TopicUplinks     = "+/devices/+/up"
	TopicActivations = "+/devices/+/activations"
)

func IsActivationTopic(topic string) bool { return strings.HasSuffix(topic, "/activations") }
func IsUplinkTopic(topic string) bool     { return strings.HasSuffix(topic, "/up") }
