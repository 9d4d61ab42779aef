// Package embedos implements the Embedded OS peripheral (PNUM 0x02): OS_Read
// (firmware/build identification, which the Enumerator also uses to read
// each bonded node's MID) and a selective-batch request builder. The
// Enumerator does not issue selective-batch requests and does not read
// VRN/zone/parent routing data.
package embedos

import (
	"encoding/binary"
	"fmt"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

// PNUM is the OS peripheral number.
const PNUM byte = 0x02

// Command identifiers on the OS peripheral.
const (
	CmdRead          byte = 0x00
	CmdReset         byte = 0x01
	CmdReadCfg       byte = 0x02
	CmdRFPGM         byte = 0x03
	CmdSleep         byte = 0x04
	CmdBatch         byte = 0x05
	CmdSetSecurity   byte = 0x06
	CmdIndicate      byte = 0x07
	CmdRestart       byte = 0x08
	CmdWriteCfgByte  byte = 0x09
	CmdLoadCode      byte = 0x0A
	CmdSelectiveBatch byte = 0x0B
	CmdTestRFSignal  byte = 0x0C
	CmdFactorySettings byte = 0x0D
	CmdWriteHWPConf  byte = 0x17
)

// MCUType identifies the transceiver's microcontroller family, decoded from
// the low bits of the OS_Read response's McuType byte.
type MCUType byte

// Known MCU types.
const (
	MCUUnknown    MCUType = 0x00
	MCUPIC16LF819 MCUType = 0x01
	MCUPIC16LF1938 MCUType = 0x04
	MCUPIC16LF18877 MCUType = 0x05
)

func (m MCUType) String() string {
	switch m {
	case MCUPIC16LF819:
		return "PIC16LF819"
	case MCUPIC16LF1938:
		return "PIC16LF1938"
	case MCUPIC16LF18877:
		return "PIC16LF18877"
	default:
		return "UNKNOWN"
	}
}

// ReadResult is the decoded OS_Read response.
type ReadResult struct {
	MID        uint32
	OsVersion  string
	OsBuild    string
	OsBuildRaw uint16
	MCUType    MCUType
	DpaVersion uint16
}

// ReadRequest builds the OS_Read request frame.
func ReadRequest(nadr uint16, hwpid uint16) dpa.Frame {
	return dpa.Frame{NADR: nadr, PNUM: PNUM, PCMD: CmdRead, HWPID: hwpid}
}

// ParseReadResponse decodes an OS_Read response body.
//
// Body layout: MID(4) RESERVED(1) OsVersion(1) McuType(1) OsBuild(2) RSSI(1)
// Supply(1) Flags(1) SlotLimits(1) [DpaVersion(2) PerNr(1) ... for newer OS].
func ParseReadResponse(resp dpa.ResponseFrame) (ReadResult, error) {
	if resp.RCode != 0x00 {
		return ReadResult{}, dpa.ErrProtocol{Code: resp.RCode}
	}
	b := resp.Body
	if len(b) < 9 {
		return ReadResult{}, dpa.ErrBadResponse{Reason: "os read response too short"}
	}
	var r ReadResult
	r.MID = binary.LittleEndian.Uint32(b[0:4])
	osVersion := b[5]
	r.McuTypeSet(b[6])
	r.OsBuildRaw = binary.LittleEndian.Uint16(b[7:9])
	r.OsVersion = fmt.Sprintf("%d.%02XD", osVersion>>4, osVersion&0x0F)
	r.OsBuild = fmt.Sprintf("%04X", r.OsBuildRaw)
	if len(b) >= 15 {
		r.DpaVersion = binary.LittleEndian.Uint16(b[13:15])
	}
	return r, nil
}

// McuTypeSet decodes the MCU type from the low three bits of the raw
// McuType byte and stores it on the result.
func (r *ReadResult) McuTypeSet(raw byte) {
	r.MCUType = MCUType(raw & 0x07)
}

// SelectiveBatchRequest builds a selective-batch request: a list of
// sub-requests executed in sequence by the addressed node, restricted to the
// node addresses in selectedNodes via the preceding FRC selection (the
// selection itself travels with the FRC request, not this frame).
func SelectiveBatchRequest(nadr uint16, hwpid uint16, subRequests []dpa.Frame) (dpa.Frame, error) {
	var body []byte
	for _, sub := range subRequests {
		raw, err := sub.MarshalBinary()
		if err != nil {
			return dpa.Frame{}, err
		}
		// length-prefixed sub-request, per the Batch/SelectiveBatch wire format
		body = append(body, byte(len(raw)))
		body = append(body, raw...)
	}
	body = append(body, 0x00) // terminator
	return dpa.Frame{NADR: nadr, PNUM: PNUM, PCMD: CmdSelectiveBatch, HWPID: hwpid, Body: body}, nil
}

// ReadCfgRequest reads the current HWP configuration block, used when the
// enumerator needs DPA version/peripheral-enumeration data via polling
// rather than FRC.
func ReadCfgRequest(nadr uint16, hwpid uint16) dpa.Frame {
	return dpa.Frame{NADR: nadr, PNUM: PNUM, PCMD: CmdReadCfg, HWPID: hwpid}
}
