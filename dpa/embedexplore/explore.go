// Package embedexplore implements the Exploration peripheral (PNUM 0xFF):
// Enumerate (CmdMorePeripheralsInfo is declared, but has no request builder
// or parser), used by the Enumerator's polling path
// (DPA < 0x0402, or a single node to enumerate) to learn a device's
// peripheral-enumeration data without FRC.
package embedexplore

import (
	"fmt"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

// PNUM is the Exploration peripheral number.
const PNUM byte = 0xFF

// Command identifiers on the Exploration peripheral.
const (
	CmdPeripheralsEnumeration byte = 0x3F
	CmdMorePeripheralsInfo    byte = 0x3E
)

// EnumerateResult is the decoded response to Exploration_Enumerate.
type EnumerateResult struct {
	DpaVersion  uint16
	PerNr       int
	EmbedPer    map[int]bool
	HwpidEnm    uint16
	HwpidVer    uint16
	Flags       int
	UserPerFrom int
}

// DpaVerAsString renders DpaVersion the way the original daemon does:
// "<major>.<minor two-digit hex>", masked to the low 14 bits (the top two
// bits of the raw field are reserved flags, not part of the version).
func (r EnumerateResult) DpaVerAsString() string {
	v := r.DpaVersion & 0x3FFF
	return fmt.Sprintf("%X.%02X", v>>8, v&0xFF)
}

// EnumerateRequest builds the Exploration_Enumerate request frame.
func EnumerateRequest(nadr uint16, hwpid uint16) dpa.Frame {
	return dpa.Frame{NADR: nadr, PNUM: PNUM, PCMD: CmdPeripheralsEnumeration, HWPID: hwpid}
}

// ParseEnumerateResponse decodes an Exploration_Enumerate response body.
//
// Body layout: DpaVersion(2) PerNr(1) EmbedPer(4, bitmap) HwpidEnm(2)
// HwpidVer(2) Flags(1) [UserPerFrom(1)...].
func ParseEnumerateResponse(resp dpa.ResponseFrame) (EnumerateResult, error) {
	if resp.RCode != 0x00 {
		return EnumerateResult{}, dpa.ErrProtocol{Code: resp.RCode}
	}
	b := resp.Body
	if len(b) < 12 {
		return EnumerateResult{}, dpa.ErrBadResponse{Reason: "exploration enumerate response too short"}
	}
	var r EnumerateResult
	r.DpaVersion = uint16(b[0]) | uint16(b[1])<<8
	r.PerNr = int(b[2])
	r.EmbedPer = map[int]bool{}
	for byteIdx := 0; byteIdx < 4; byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			if b[3+byteIdx]&(1<<uint(bit)) != 0 {
				r.EmbedPer[byteIdx*8+bit] = true
			}
		}
	}
	r.HwpidEnm = uint16(b[7]) | uint16(b[8])<<8
	r.HwpidVer = uint16(b[9]) | uint16(b[10])<<8
	r.Flags = int(b[11])
	if len(b) > 12 {
		r.UserPerFrom = int(b[12])
	}
	return r, nil
}
