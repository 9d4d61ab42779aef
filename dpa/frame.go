package dpa

import (
	"encoding/binary"
	"fmt"
)

// HWPIDDoNotCheck is the HWPID value instructing a node to skip the
// hardware-profile-id check.
const HWPIDDoNotCheck uint16 = 0xFFFF

// CoordinatorAddress is the reserved NADR of the coordinator itself.
const CoordinatorAddress uint16 = 0x00

// responseBit marks a PCMD byte as belonging to a response frame.
const responseBit byte = 0x80

// asyncBit marks a response code as an asynchronously delivered frame.
const asyncBit byte = 0x80

// Frame is the raw byte-level view of a DPA request.
//
// Layout (little-endian multi-byte fields):
//
//	offset 0..1  NADR   target address
//	offset 2     PNUM   peripheral number
//	offset 3     PCMD   peripheral command
//	offset 4..5  HWPID  hardware profile id
//	offset 6..   Body   request-specific payload
type Frame struct {
	NADR  uint16
	PNUM  byte
	PCMD  byte
	HWPID uint16
	Body  []byte
}

// ResponseFrame is the raw byte-level view of a DPA response. PCMD holds
// the command with the response bit (0x80) stripped: UnmarshalBinary
// clears it and MarshalBinary sets it again. IsAsync reports whether
// RCode's high bit marks an asynchronously received frame.
type ResponseFrame struct {
	NADR     uint16
	PNUM     byte
	PCMD     byte
	HWPID    uint16
	RCode    byte
	DPAValue byte
	Body     []byte
}

// IsResponse reports whether PCMD has the response bit set.
func (f Frame) IsResponse() bool {
	return f.PCMD&responseBit != 0
}

// RequestPCMD strips the response bit from PCMD.
func RequestPCMD(pcmd byte) byte {
	return pcmd &^ responseBit
}

// ResponsePCMD sets the response bit on PCMD.
func ResponsePCMD(pcmd byte) byte {
	return pcmd | responseBit
}

// IsAsync reports whether rcode's high bit marks an asynchronously
// delivered frame, and returns the code with that bit stripped.
func IsAsync(rcode byte) (code byte, async bool) {
	return rcode &^ asyncBit, rcode&asyncBit != 0
}

// MarshalBinary encodes the request frame to its wire form.
func (f Frame) MarshalBinary() ([]byte, error) {
	b := make([]byte, 6, 6+len(f.Body))
	binary.LittleEndian.PutUint16(b[0:2], f.NADR)
	b[2] = f.PNUM
	b[3] = f.PCMD
	binary.LittleEndian.PutUint16(b[4:6], f.HWPID)
	b = append(b, f.Body...)
	return b, nil
}

// UnmarshalBinary decodes a request frame from its wire form.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < 6 {
		return ErrBadResponse{Reason: fmt.Sprintf("dpa: at least 6 bytes expected for a request frame, got %d", len(data))}
	}
	f.NADR = binary.LittleEndian.Uint16(data[0:2])
	f.PNUM = data[2]
	f.PCMD = data[3]
	f.HWPID = binary.LittleEndian.Uint16(data[4:6])
	if len(data) > 6 {
		f.Body = append([]byte(nil), data[6:]...)
	} else {
		f.Body = nil
	}
	return nil
}

// MarshalBinary encodes the response frame to its wire form.
func (f ResponseFrame) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8, 8+len(f.Body))
	binary.LittleEndian.PutUint16(b[0:2], f.NADR)
	b[2] = f.PNUM
	b[3] = ResponsePCMD(f.PCMD)
	binary.LittleEndian.PutUint16(b[4:6], f.HWPID)
	b[6] = f.RCode
	b[7] = f.DPAValue
	b = append(b, f.Body...)
	return b, nil
}

// UnmarshalBinary decodes a response frame from its wire form.
func (f *ResponseFrame) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return ErrBadResponse{Reason: fmt.Sprintf("dpa: at least 8 bytes expected for a response frame, got %d", len(data))}
	}
	f.NADR = binary.LittleEndian.Uint16(data[0:2])
	f.PNUM = data[2]
	f.PCMD = RequestPCMD(data[3])
	f.HWPID = binary.LittleEndian.Uint16(data[4:6])
	f.RCode = data[6]
	f.DPAValue = data[7]
	if len(data) > 8 {
		f.Body = append([]byte(nil), data[8:]...)
	} else {
		f.Body = nil
	}
	return nil
}

// MatchesRequest reports whether the response addresses the same
// (nadr, pnum, pcmd) triple as the request, per the DPA Codec's bad-response
// detection rule.
func (f ResponseFrame) MatchesRequest(req Frame) bool {
	return f.NADR == req.NADR && f.PNUM == req.PNUM && f.PCMD == RequestPCMD(req.PCMD)
}
