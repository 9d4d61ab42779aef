// Package embedcoordinator implements the Embedded Coordinator peripheral
// (PNUM 0x00): bonding, discovery, the bonded/discovered device bitmaps, and
// the module-id (MID) table used by the Enumerator's NetworkCheck step.
package embedcoordinator

import (
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

// PNUM is the Coordinator peripheral number.
const PNUM byte = 0x00

// Command identifiers on the Coordinator peripheral.
const (
	CmdAddrInfo       byte = 0x00
	CmdDiscoveredDevices byte = 0x01
	CmdBondedDevices  byte = 0x02
	CmdClearAllBonds  byte = 0x03
	CmdBondNode       byte = 0x04
	CmdRemoveBond     byte = 0x05
	CmdDiscovery      byte = 0x07
	CmdSetDpaParams   byte = 0x08
	CmdSetHops        byte = 0x09
	CmdBackup         byte = 0x0A
	CmdRestore        byte = 0x0B
	CmdAuthorizeBond  byte = 0x0D
	CmdSetMid         byte = 0x0E
	CmdSmartConnect   byte = 0x11
)

// MutatingCommands is the fixed set of Coordinator commands whose responses
// wake the Enumerator.
var MutatingCommands = map[byte]bool{
	CmdBondNode:      true,
	CmdClearAllBonds: true,
	CmdDiscovery:     true,
	CmdRemoveBond:    true,
	CmdRestore:       true,
	CmdSetMid:        true,
	CmdSmartConnect:  true,
}

// IsMutating reports whether pcmd (with the response bit already stripped)
// belongs to MutatingCommands.
func IsMutating(pnum, pcmd byte) bool {
	return pnum == PNUM && MutatingCommands[dpa.RequestPCMD(pcmd)]
}

// BitmapToAddresses decodes a 30-byte bonded/discovered bitmap (addresses
// 0..239, one bit per address) into the set of addresses whose bit is set.
func BitmapToAddresses(bitmap []byte) []uint16 {
	var out []uint16
	for byteIdx, b := range bitmap {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) != 0 {
				addr := uint16(byteIdx*8 + bit)
				if addr <= 239 {
					out = append(out, addr)
				}
			}
		}
	}
	return out
}

// BondedDevicesRequest builds the BondedDevices request frame.
func BondedDevicesRequest(hwpid uint16) dpa.Frame {
	return dpa.Frame{NADR: dpa.CoordinatorAddress, PNUM: PNUM, PCMD: CmdBondedDevices, HWPID: hwpid}
}

// DiscoveredDevicesRequest builds the DiscoveredDevices request frame.
func DiscoveredDevicesRequest(hwpid uint16) dpa.Frame {
	return dpa.Frame{NADR: dpa.CoordinatorAddress, PNUM: PNUM, PCMD: CmdDiscoveredDevices, HWPID: hwpid}
}

// ParseBitmapResponse extracts the set bits of a bonded/discovered bitmap
// response.
func ParseBitmapResponse(resp dpa.ResponseFrame) ([]uint16, error) {
	if resp.RCode != 0x00 {
		return nil, dpa.ErrProtocol{Code: resp.RCode}
	}
	return BitmapToAddresses(resp.Body), nil
}
