// Package light implements the probe-side of the Light standard
// (PNUM 0x4A): SendLdiCommands and SetLai, the raw commands used to
// drive LDI-addressed light drivers directly, independent of the
// driver-backed iqrfLight_* message family the dispatcher serves from
// Javascript drivers.
package light

import (
	"encoding/binary"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

// PNUM is the Light peripheral number.
const PNUM byte = 0x4A

// Command identifiers on the Light peripheral.
const (
	CmdSendLdiCommands      byte = 0x00
	CmdSendLdiCommandsAsync byte = 0x01
	CmdSetLai               byte = 0x02
)

// Answer is one LDI command's status/value pair, as returned by
// SendLdiCommands.
type Answer struct {
	Status byte
	Value  byte
}

// SendLdiCommandsRequest builds a request carrying a sequence of 16-bit
// LDI commands to execute against the addressed node's lighting driver.
func SendLdiCommandsRequest(nadr uint16, hwpid uint16, ldiCommands []uint16, async bool) dpa.Frame {
	body := make([]byte, 2*len(ldiCommands))
	for i, c := range ldiCommands {
		binary.LittleEndian.PutUint16(body[i*2:], c)
	}
	pcmd := CmdSendLdiCommands
	if async {
		pcmd = CmdSendLdiCommandsAsync
	}
	return dpa.Frame{NADR: nadr, PNUM: PNUM, PCMD: pcmd, HWPID: hwpid, Body: body}
}

// ParseSendLdiCommandsResponse decodes one status/value answer pair per
// requested LDI command.
func ParseSendLdiCommandsResponse(resp dpa.ResponseFrame) ([]Answer, error) {
	if resp.RCode != 0x00 {
		return nil, dpa.ErrProtocol{Code: resp.RCode}
	}
	if len(resp.Body)%2 != 0 {
		return nil, dpa.ErrBadResponse{Reason: "light send-ldi-commands response has odd body length"}
	}
	answers := make([]Answer, len(resp.Body)/2)
	for i := range answers {
		answers[i] = Answer{Status: resp.Body[i*2], Value: resp.Body[i*2+1]}
	}
	return answers, nil
}

// SetLaiRequest builds a request to set the node's LAI (light analog
// interface) output voltage, in millivolts.
func SetLaiRequest(nadr uint16, hwpid uint16, voltage uint16) dpa.Frame {
	body := make([]byte, 2)
	binary.LittleEndian.PutUint16(body, voltage)
	return dpa.Frame{NADR: nadr, PNUM: PNUM, PCMD: CmdSetLai, HWPID: hwpid, Body: body}
}

// ParseSetLaiResponse decodes the previous LAI voltage returned by
// SetLai.
func ParseSetLaiResponse(resp dpa.ResponseFrame) (uint16, error) {
	if resp.RCode != 0x00 {
		return 0, dpa.ErrProtocol{Code: resp.RCode}
	}
	if len(resp.Body) < 2 {
		return 0, dpa.ErrBadResponse{Reason: "light set-lai response too short"}
	}
	return binary.LittleEndian.Uint16(resp.Body[:2]), nil
}

// FrcLdiSendUserData packs an LDI command as the FRC user-data payload
// for Frc_LdiSend (an FRC Send with this peripheral's command byte).
func FrcLdiSendUserData(ldiCommand uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, ldiCommand)
	return b
}
