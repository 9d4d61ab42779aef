// Package dali implements the probe-side of the legacy DALI standard,
// carried over the Light peripheral (PNUM 0x4A) as a sequence of
// 16-bit DALI command words: SendCommands and the Frc wrapper used to
// poll many DALI ballasts in one air slot. DALI has no DPA command of
// its own; it is superseded by the Light standard's LDI commands and
// kept only for backward-compatible probing.
package dali

import (
	"encoding/binary"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/std/light"
)

// PNUM is the peripheral DALI commands travel over.
const PNUM = light.PNUM

// Command identifiers, shared with the Light peripheral's LDI command
// set (DALI commands are LDI commands in disguise).
const (
	CmdSendCommands      = light.CmdSendLdiCommands
	CmdSendCommandsAsync = light.CmdSendLdiCommandsAsync
)

// Answer is one DALI command's status/value pair.
type Answer struct {
	Status byte
	Value  byte
}

// SendCommandsRequest builds a request carrying a sequence of 16-bit
// DALI command words to execute against the addressed node's DALI
// bus driver.
func SendCommandsRequest(nadr uint16, hwpid uint16, commands []uint16, async bool) dpa.Frame {
	body := make([]byte, 2*len(commands))
	for i, c := range commands {
		binary.LittleEndian.PutUint16(body[i*2:], c)
	}
	pcmd := CmdSendCommands
	if async {
		pcmd = CmdSendCommandsAsync
	}
	return dpa.Frame{NADR: nadr, PNUM: PNUM, PCMD: pcmd, HWPID: hwpid, Body: body}
}

// ParseSendCommandsResponse decodes one status/value answer pair per
// requested DALI command.
func ParseSendCommandsResponse(resp dpa.ResponseFrame) ([]Answer, error) {
	if resp.RCode != 0x00 {
		return nil, dpa.ErrProtocol{Code: resp.RCode}
	}
	if len(resp.Body)%2 != 0 {
		return nil, dpa.ErrBadResponse{Reason: "dali send-commands response has odd body length"}
	}
	answers := make([]Answer, len(resp.Body)/2)
	for i := range answers {
		answers[i] = Answer{Status: resp.Body[i*2], Value: resp.Body[i*2+1]}
	}
	return answers, nil
}

// FrcUserData packs a DALI command as the FRC user-data payload for the
// Frc wrapper (an FRC Send addressed at the Light peripheral's FRC
// command, carrying the DALI command word).
func FrcUserData(daliCommand uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, daliCommand)
	return b
}
