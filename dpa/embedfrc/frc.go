// Package embedfrc implements the FRC peripheral (PNUM 0x0D): Send,
// SendSelective, and ExtraResult, the batched-aggregation commands the
// Enumerator and Sensor-FRC Reader use to poll many nodes in one air slot.
package embedfrc

import (
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

// PNUM is the FRC peripheral number.
const PNUM byte = 0x0D

// Command identifiers on the FRC peripheral.
const (
	CmdSend          byte = 0x00
	CmdExtraResult   byte = 0x01
	CmdSendSelective byte = 0x02
	CmdSetParams     byte = 0x03
)

// Byte-width command codes for 1-byte/2-byte/4-byte (advanced) FRC commands,
// used by the Sensor-FRC reader's width→command mapping.
const (
	CmdMemoryRead1Byte byte = 0x90
	CmdMemoryRead2Byte byte = 0xE0
	CmdMemoryRead4Byte byte = 0xF9
)

// SelectedNodesMaskLen is the fixed length, in bytes, of the selected-nodes
// bitmap carried by SendSelective (30 bytes = 240 bits, addresses 0..239).
const SelectedNodesMaskLen = 30

// SelectedNodesMask builds the 30-byte selected-nodes bitmap for
// Frc_SendSelective from a set of node addresses.
func SelectedNodesMask(addrs []uint16) []byte {
	mask := make([]byte, SelectedNodesMaskLen)
	for _, a := range addrs {
		if a > 239 {
			continue
		}
		mask[a/8] |= 1 << (a % 8)
	}
	return mask
}

// SendRequest builds a plain (non-selective) FRC Send request.
func SendRequest(hwpid uint16, frcCommand byte, userData []byte) dpa.Frame {
	body := append([]byte{frcCommand}, userData...)
	return dpa.Frame{NADR: dpa.CoordinatorAddress, PNUM: PNUM, PCMD: CmdSend, HWPID: hwpid, Body: body}
}

// SendSelectiveRequest builds a selective FRC Send request restricted to the
// given node addresses.
func SendSelectiveRequest(hwpid uint16, frcCommand byte, selectedNodes []uint16, userData []byte) dpa.Frame {
	body := append([]byte{frcCommand}, SelectedNodesMask(selectedNodes)...)
	body = append(body, userData...)
	return dpa.Frame{NADR: dpa.CoordinatorAddress, PNUM: PNUM, PCMD: CmdSendSelective, HWPID: hwpid, Body: body}
}

// ExtraResultRequest builds the FRC ExtraResult request that follows a Send
// or SendSelective whose aggregated reply overflowed the single-response
// capacity.
func ExtraResultRequest(hwpid uint16) dpa.Frame {
	return dpa.Frame{NADR: dpa.CoordinatorAddress, PNUM: PNUM, PCMD: CmdExtraResult, HWPID: hwpid}
}

// SendResult is the decoded FRC Send/SendSelective response: the FRC status
// byte followed by up to 55 bytes of aggregated per-node data.
type SendResult struct {
	Status byte
	Data   []byte
}

// ParseSendResponse decodes a Send/SendSelective response body.
func ParseSendResponse(resp dpa.ResponseFrame) (SendResult, error) {
	if resp.RCode != 0x00 {
		return SendResult{}, dpa.ErrProtocol{Code: resp.RCode}
	}
	if len(resp.Body) < 1 {
		return SendResult{}, dpa.ErrBadResponse{Reason: "frc send response missing status byte"}
	}
	return SendResult{Status: resp.Body[0], Data: resp.Body[1:]}, nil
}

// ParseExtraResultResponse decodes an ExtraResult response body (raw
// continuation bytes, no status byte).
func ParseExtraResultResponse(resp dpa.ResponseFrame) ([]byte, error) {
	if resp.RCode != 0x00 {
		return nil, dpa.ErrProtocol{Code: resp.RCode}
	}
	return resp.Body, nil
}

// Width describes the per-node sample width of a numeric FRC command, used
// to pick the right batch size and extra-result capacity.
type Width int

// Supported numeric sensor sample widths.
const (
	Width1Byte Width = 1
	Width2Byte Width = 2
	Width4Byte Width = 4
)

// BatchSize is the maximum number of node addresses that may be selected in
// one FRC command for the given sample width.
func (w Width) BatchSize() int {
	switch w {
	case Width1Byte:
		return 63
	case Width2Byte:
		return 31
	case Width4Byte:
		return 15
	default:
		return 0
	}
}

// SingleResponseCapacity is the number of node samples that fit in the Send
// response alone, beyond which an ExtraResult request is required.
func (w Width) SingleResponseCapacity() int {
	switch w {
	case Width1Byte:
		return 55
	case Width2Byte:
		return 27
	case Width4Byte:
		return 13
	default:
		return 0
	}
}

// NeedsExtraResult reports whether a batch of the given size requires a
// follow-up FRC ExtraResult request for this width.
func (w Width) NeedsExtraResult(batchSize int) bool {
	return batchSize > w.SingleResponseCapacity()
}

// MemoryReadCommand returns the FRC command byte used to read node memory
// (MID/HWPID/peripheral-enumeration or RSSI registers) at the given width.
func (w Width) MemoryReadCommand() byte {
	switch w {
	case Width1Byte:
		return CmdMemoryRead1Byte
	case Width2Byte:
		return CmdMemoryRead2Byte
	case Width4Byte:
		return CmdMemoryRead4Byte
	default:
		return 0
	}
}
