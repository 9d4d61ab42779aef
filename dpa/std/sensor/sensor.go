// Package sensor implements the probe-side of the Sensor standard
// (PNUM 0x5E): the raw Enumerate request the Standards enumeration step
// uses to learn a device's sensor inventory, independent of the
// driver-backed iqrfSensor_* message family the dispatcher serves from
// Javascript drivers.
package sensor

import (
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

// PNUM is the Sensor peripheral number.
const PNUM byte = 0x5E

// Command identifiers on the Sensor peripheral.
const (
	CmdEnumerate           byte = 0x3E
	CmdReadSensorsWithTypes byte = 0x3D
)

// FRC command codes by reported sample width, used by the Sensor-FRC
// reader to pick the right batching table.
const (
	FrcCmd2Bits  byte = 0x10
	FrcCmd1Byte  byte = 0x90
	FrcCmd2Bytes byte = 0xE0
	FrcCmd4Bytes byte = 0xF9
)

// Quantity describes one sensor slot as reported by Enumerate: its
// position in the device's sensor array and its IQRF standard type id.
type Quantity struct {
	Index int
	Type  byte
}

// EnumerateRequest builds the Sensor_Enumerate request frame.
func EnumerateRequest(nadr uint16, hwpid uint16) dpa.Frame {
	return dpa.Frame{NADR: nadr, PNUM: PNUM, PCMD: CmdEnumerate, HWPID: hwpid}
}

// ParseEnumerateResponse decodes a Sensor_Enumerate response body: one
// type byte per populated sensor slot, 0xFF marking an unused slot.
func ParseEnumerateResponse(resp dpa.ResponseFrame) ([]Quantity, error) {
	if resp.RCode != 0x00 {
		return nil, dpa.ErrProtocol{Code: resp.RCode}
	}
	var quantities []Quantity
	for i, t := range resp.Body {
		if t == 0xFF {
			continue
		}
		quantities = append(quantities, Quantity{Index: i, Type: t})
	}
	return quantities, nil
}

// ReadSensorsWithTypesRequest builds a request for the current value of
// every sensor type in types, in device sensor-array order.
func ReadSensorsWithTypesRequest(nadr uint16, hwpid uint16, types []byte) dpa.Frame {
	return dpa.Frame{NADR: nadr, PNUM: PNUM, PCMD: CmdReadSensorsWithTypes, HWPID: hwpid, Body: types}
}

// FrcCommandForWidth returns the FRC command byte that reads a sensor's
// current value at the given sample width.
func FrcCommandForWidth(width int) byte {
	switch width {
	case 1:
		return FrcCmd1Byte
	case 2:
		return FrcCmd2Bytes
	case 4:
		return FrcCmd4Bytes
	default:
		return FrcCmd2Bits
	}
}
