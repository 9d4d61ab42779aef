// Package binaryoutput implements the probe-side of the BinaryOutput
// standard (PNUM 0x4B): Enumerate and SetOutput, the raw commands used
// by the Standards enumeration step and by direct output control,
// independent of the driver-backed iqrfBinaryoutput_* message family
// the dispatcher serves from Javascript drivers.
package binaryoutput

import (
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

// PNUM is the BinaryOutput peripheral number.
const PNUM byte = 0x4B

// Command identifiers on the BinaryOutput peripheral.
const (
	CmdSetOutput byte = 0x00
	CmdEnumerate byte = 0x3E
)

// OutputState is one index/value pair in a SetOutput request, mirroring
// the on/off state written to a single output.
type OutputState struct {
	Index byte
	State bool
}

// EnumerateRequest builds the BinaryOutput_Enumerate request frame.
func EnumerateRequest(nadr uint16, hwpid uint16) dpa.Frame {
	return dpa.Frame{NADR: nadr, PNUM: PNUM, PCMD: CmdEnumerate, HWPID: hwpid}
}

// ParseEnumerateResponse decodes the output count reported by
// BinaryOutput_Enumerate.
func ParseEnumerateResponse(resp dpa.ResponseFrame) (int, error) {
	if resp.RCode != 0x00 {
		return 0, dpa.ErrProtocol{Code: resp.RCode}
	}
	if len(resp.Body) < 1 {
		return 0, dpa.ErrBadResponse{Reason: "binary output enumerate response missing count byte"}
	}
	return int(resp.Body[0]), nil
}

// SetOutputRequest builds a request that sets zero or more outputs in a
// single transaction; each state becomes its index byte followed by 0x01
// (on) or 0x00 (off), in the order given.
func SetOutputRequest(nadr uint16, hwpid uint16, states []OutputState) dpa.Frame {
	body := make([]byte, 0, 2*len(states))
	for _, s := range states {
		v := byte(0x00)
		if s.State {
			v = 0x01
		}
		body = append(body, s.Index, v)
	}
	return dpa.Frame{NADR: nadr, PNUM: PNUM, PCMD: CmdSetOutput, HWPID: hwpid, Body: body}
}

// ParseSetOutputResponse decodes the previous state of every output on
// the node, one byte per output (0x00/0x01).
func ParseSetOutputResponse(resp dpa.ResponseFrame) ([]bool, error) {
	if resp.RCode != 0x00 {
		return nil, dpa.ErrProtocol{Code: resp.RCode}
	}
	prev := make([]bool, len(resp.Body))
	for i, b := range resp.Body {
		prev[i] = b != 0x00
	}
	return prev, nil
}
