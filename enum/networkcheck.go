package enum

import (
	"context"

	"github.com/pkg/errors"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/embedcoordinator"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/radio"
)

type networkCheckResult struct {
	bonded      []uint16
	discovered  map[uint16]bool
	freshMID    map[uint16]uint32
	toEnumerate []uint16
	toDelete    []uint16
}

// networkCheck implements the NetworkCheck transition: read the
// Coordinator's bonded/discovered bitmaps and each bonded node's MID, then
// compute which addresses need (re)enumeration and which stored devices
// no longer exist.
func (e *Enumerator) networkCheck(ctx context.Context, h *radio.Handle, params Params) (networkCheckResult, error) {
	bonded, err := e.readBitmap(ctx, h, embedcoordinator.CmdBondedDevices)
	if err != nil {
		return networkCheckResult{}, errors.Wrap(err, "read bonded-devices bitmap")
	}
	discoveredAddrs, err := e.readBitmap(ctx, h, embedcoordinator.CmdDiscoveredDevices)
	if err != nil {
		return networkCheckResult{}, errors.Wrap(err, "read discovered-devices bitmap")
	}

	discovered := make(map[uint16]bool, len(discoveredAddrs))
	for _, a := range discoveredAddrs {
		discovered[a] = true
	}

	if len(params.Addresses) > 0 {
		filtered := bonded[:0]
		want := make(map[uint16]bool, len(params.Addresses))
		for _, a := range params.Addresses {
			want[uint16(a)] = true
		}
		for _, a := range bonded {
			if want[a] {
				filtered = append(filtered, a)
			}
		}
		bonded = filtered
	}

	freshMID, err := e.readMIDTable(ctx, h, bonded)
	if err != nil {
		return networkCheckResult{}, errors.Wrap(err, "read MID table")
	}

	storedAddresses, err := e.store.Devices.Addresses(ctx)
	if err != nil {
		return networkCheckResult{}, errors.Wrap(err, "read stored device addresses")
	}

	bondedSet := make(map[uint16]bool, len(bonded))
	for _, a := range bonded {
		bondedSet[a] = true
	}

	var toDelete []uint16
	for _, a := range storedAddresses {
		if !bondedSet[uint16(a)] {
			toDelete = append(toDelete, uint16(a))
		}
	}

	toEnumerate := append([]uint16(nil), bonded...)
	if !params.FullReenumerate {
		toEnumerate = toEnumerate[:0]
		for _, a := range bonded {
			stored, err := e.store.Devices.ByAddress(ctx, int(a))
			if err == nil && stored.MID == freshMID[a] {
				continue // unchanged since the last pass
			}
			toEnumerate = append(toEnumerate, a)
		}
	}

	return networkCheckResult{
		bonded:      bonded,
		discovered:  discovered,
		freshMID:    freshMID,
		toEnumerate: toEnumerate,
		toDelete:    toDelete,
	}, nil
}

func (e *Enumerator) readBitmap(ctx context.Context, h *radio.Handle, pcmd byte) ([]uint16, error) {
	frame := dpa.Frame{NADR: dpa.CoordinatorAddress, PNUM: embedcoordinator.PNUM, PCMD: pcmd, HWPID: dpa.HWPIDDoNotCheck}
	res := h.ExecuteTransaction(ctx, frame, radio.DefaultTimeoutLocal, 0)
	if res.Code != radio.TRN_OK {
		return nil, errors.Errorf("coordinator bitmap read failed: %s", res.Code)
	}
	return embedcoordinator.ParseBitmapResponse(res.Response)
}

// readMIDTable reads the module-id for every bonded address. The
// original daemon recovers this from the coordinator's routing table in
// one contiguous read; here each address is read individually through
// OS_Read, at the cost of one extra transaction per node on a full
// pass. A node whose OS_Read fails is logged and left out of the
// returned map; such a failure never aborts the pass, and the returned
// error is always nil.
func (e *Enumerator) readMIDTable(ctx context.Context, h *radio.Handle, addresses []uint16) (map[uint16]uint32, error) {
	mids := make(map[uint16]uint32, len(addresses))
	for _, addr := range addresses {
		info, err := e.readOS(ctx, h, addr)
		if err != nil {
			e.log.WithError(err).WithField("address", addr).Warn("failed to read MID for bonded address")
			continue
		}
		mids[addr] = info.MID
	}
	return mids, nil
}
