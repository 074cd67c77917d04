package mailbox

import (
	"fmt"
	"strconv"
	"strings"
)

// Message composes notification text for recipients.
// Sensor looks down at the mailbox floor: mail shortens the distance,
// so distance growing past threshold means mail was taken out.
// Distances are shown in centimeters.
// Voltage and temperature are appended only when both are known.
func (self *State) Message(t Transition) string {
	var b strings.Builder
	prevCm, curCm := float32(t.Previous)/10.0, float32(t.Current)/10.0
	switch t.Kind {
	case BecameFull:
		fmt.Fprintf(&b, "\U0001F4ED Mailbox was emptied. Distance changed from %.1fcm to %.1fcm.", prevCm, curCm)
	case BecameEmpty:
		fmt.Fprintf(&b, "\U0001F4EC Mailbox is full! Distance changed from %.1fcm to %.1fcm.", prevCm, curCm)
	default:
		panic(fmt.Sprintf("code error mailbox.Message transition=%#v", t))
	}

	volts, okv := self.Voltage()
	celsius, okt := self.Temperature()
	if okv && okt {
		fmt.Fprintf(&b, " (_Voltage: %sV, temperature: %s°C._)", formatFloat(volts), formatFloat(celsius))
	}
	return b.String()
}

func formatFloat(f float32) string { return strconv.FormatFloat(float64(f), 'f', -1, 32) }
