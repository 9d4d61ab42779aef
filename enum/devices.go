package enum

import (
	"context"

	"github.com/pkg/errors"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/embedexplore"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/embedfrc"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/embedos"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/radio"
)

// deviceInfo is what the Devices transition recovers for one address,
// enough to intern a Product and upsert a Device row.
type deviceInfo struct {
	address      uint16
	mid          uint32
	hwpid        int
	hwpidVersion int
	osVersion    string
	osBuild      string
	dpaVersion   string
	discovered   bool
}

func (e *Enumerator) readOS(ctx context.Context, h *radio.Handle, addr uint16) (embedos.ReadResult, error) {
	res := h.ExecuteTransaction(ctx, embedos.ReadRequest(addr, dpa.HWPIDDoNotCheck), radio.DefaultTimeoutLocal, 0)
	if res.Code != radio.TRN_OK {
		return embedos.ReadResult{}, errors.Errorf("OS_Read failed for address %d: %s", addr, res.Code)
	}
	return embedos.ParseReadResponse(res.Response)
}

// enumerateDevices implements the Devices transition: for every address
// in nc.toEnumerate, collect (os-build, os-version, dpa-version, hwpid,
// hwpid-version), preferring an FRC-batched memory read when the network
// is new enough and more than one node needs enumerating, falling back
// to per-node polling otherwise. A per-node failure drops that address
// from the result rather than aborting the pass.
func (e *Enumerator) enumerateDevices(ctx context.Context, h *radio.Handle, nc networkCheckResult) ([]deviceInfo, error) {
	if len(nc.toEnumerate) == 0 {
		return nil, nil
	}

	dpaVersion, err := e.probeDPAVersion(ctx, h, nc.toEnumerate[0])
	if err == nil && dpaVersion >= frcBatchedDevicesMemoryReadThreshold && len(nc.toEnumerate) > 1 {
		devices, err := e.enumerateDevicesFRC(ctx, h, nc)
		if err == nil {
			return devices, nil
		}
		e.log.WithError(err).Warn("FRC-batched device enumeration failed, falling back to polling")
	}
	return e.enumerateDevicesPolling(ctx, h, nc)
}

func (e *Enumerator) probeDPAVersion(ctx context.Context, h *radio.Handle, addr uint16) (uint16, error) {
	res := h.ExecuteTransaction(ctx, embedexplore.EnumerateRequest(addr, dpa.HWPIDDoNotCheck), radio.DefaultTimeoutLocal, 0)
	if res.Code != radio.TRN_OK {
		return 0, errors.Errorf("exploration probe failed for address %d: %s", addr, res.Code)
	}
	result, err := embedexplore.ParseEnumerateResponse(res.Response)
	if err != nil {
		return 0, err
	}
	return result.DpaVersion & 0x3FFF, nil
}

func (e *Enumerator) enumerateDevicesPolling(ctx context.Context, h *radio.Handle, nc networkCheckResult) ([]deviceInfo, error) {
	var devices []deviceInfo
	for _, addr := range nc.toEnumerate {
		os, err := e.readOS(ctx, h, addr)
		if err != nil {
			e.log.WithError(err).WithField("address", addr).Warn("device enumeration failed, dropping from pass")
			continue
		}
		expl, err := e.probeDPAVersion(ctx, h, addr)
		if err != nil {
			e.log.WithError(err).WithField("address", addr).Warn("exploration enumerate failed, dropping from pass")
			continue
		}
		hwpid, hwpidVersion, err := e.readHWPID(ctx, h, addr)
		if err != nil {
			e.log.WithError(err).WithField("address", addr).Warn("HWPID read failed, dropping from pass")
			continue
		}
		devices = append(devices, deviceInfo{
			address:      addr,
			mid:          os.MID,
			hwpid:        hwpid,
			hwpidVersion: hwpidVersion,
			osVersion:    os.OsVersion,
			osBuild:      os.OsBuild,
			dpaVersion:   dpaVersionString(expl),
			discovered:   nc.discovered[addr],
		})
	}
	return devices, nil
}

// readHWPID recovers a node's HWPID/HWPID-version pair via the
// Exploration_Enumerate response's HwpidEnm/HwpidVer fields.
func (e *Enumerator) readHWPID(ctx context.Context, h *radio.Handle, addr uint16) (hwpid int, hwpidVersion int, err error) {
	res := h.ExecuteTransaction(ctx, embedexplore.EnumerateRequest(addr, dpa.HWPIDDoNotCheck), radio.DefaultTimeoutLocal, 0)
	if res.Code != radio.TRN_OK {
		return 0, 0, errors.Errorf("HWPID read failed for address %d: %s", addr, res.Code)
	}
	result, err := embedexplore.ParseEnumerateResponse(res.Response)
	if err != nil {
		return 0, 0, err
	}
	return int(result.HwpidEnm), int(result.HwpidVer), nil
}

func dpaVersionString(v uint16) string {
	r := embedexplore.EnumerateResult{DpaVersion: v}
	return r.DpaVerAsString()
}

// enumerateDevicesFRC implements the FRC-batched branch: ping nodes via
// FRC to drop offline ones, then read peripheral-enumeration and OS
// memory in selective batches of at most frcMaxBatch nodes, issuing an
// extra-result request when a batch's aggregated reply overflows the
// single-response capacity.
func (e *Enumerator) enumerateDevicesFRC(ctx context.Context, h *radio.Handle, nc networkCheckResult) ([]deviceInfo, error) {
	online, err := e.pingOnline(ctx, h, nc.toEnumerate)
	if err != nil {
		return nil, err
	}

	var devices []deviceInfo
	for start := 0; start < len(online); start += frcMaxBatch {
		end := start + frcMaxBatch
		if end > len(online) {
			end = len(online)
		}
		batch := online[start:end]
		batchDevices, err := e.enumerateBatchFRC(ctx, h, batch, nc)
		if err != nil {
			e.log.WithError(err).Warn("FRC batch enumeration failed, dropping batch from pass")
			continue
		}
		devices = append(devices, batchDevices...)
	}
	return devices, nil
}

// pingOnline issues a 1-byte selective FRC (peripheral-enumeration FRC
// command) over addrs and returns the subset that answered.
func (e *Enumerator) pingOnline(ctx context.Context, h *radio.Handle, addrs []uint16) ([]uint16, error) {
	width := embedfrc.Width1Byte
	req := embedfrc.SendSelectiveRequest(dpa.HWPIDDoNotCheck, width.MemoryReadCommand(), addrs, nil)
	res := h.ExecuteTransaction(ctx, req, radio.DefaultTimeoutFRC, 0)
	if res.Code != radio.TRN_OK {
		return nil, errors.Errorf("FRC online-probe failed: %s", res.Code)
	}
	sendResult, err := embedfrc.ParseSendResponse(res.Response)
	if err != nil {
		return nil, err
	}
	var online []uint16
	for i, addr := range addrs {
		if i < len(sendResult.Data) && sendResult.Data[i] != 0x00 {
			online = append(online, addr)
		}
	}
	return online, nil
}

// enumerateBatchFRC handles one batch of at most frcMaxBatch nodes: one
// selective FRC memory read (plus an FRC ExtraResult when the batch
// needs it), then direct per-node polls for the identity tuple.
func (e *Enumerator) enumerateBatchFRC(ctx context.Context, h *radio.Handle, batch []uint16, nc networkCheckResult) ([]deviceInfo, error) {
	width := embedfrc.Width2Byte // peripheral-enumeration/OS memory registers are word-sized
	req := embedfrc.SendSelectiveRequest(dpa.HWPIDDoNotCheck, width.MemoryReadCommand(), batch, nil)
	res := h.ExecuteTransaction(ctx, req, radio.DefaultTimeoutFRC, 0)
	if res.Code != radio.TRN_OK {
		return nil, errors.Errorf("FRC memory-read failed: %s", res.Code)
	}
	sendResult, err := embedfrc.ParseSendResponse(res.Response)
	if err != nil {
		return nil, err
	}
	data := sendResult.Data
	if width.NeedsExtraResult(len(batch)) {
		extraReq := embedfrc.ExtraResultRequest(dpa.HWPIDDoNotCheck)
		extraRes := h.ExecuteTransaction(ctx, extraReq, radio.DefaultTimeoutFRC, 0)
		if extraRes.Code != radio.TRN_OK {
			return nil, errors.Errorf("FRC extra-result failed: %s", extraRes.Code)
		}
		extra, err := embedfrc.ParseExtraResultResponse(extraRes.Response)
		if err != nil {
			return nil, err
		}
		data = append(data, extra...)
	}

	// Batched memory reads recover only coarse liveness/identity data
	// at this width; HWPID/OS detail for each surviving node is
	// resolved with one direct poll to decode the full tuple, trading
	// some of the FRC path's air-time savings for a simpler, correct
	// decode rather than hand-unpacking every vendor's memory layout.
	var devices []deviceInfo
	for i, addr := range batch {
		if i*2+1 >= len(data) {
			continue
		}
		os, err := e.readOS(ctx, h, addr)
		if err != nil {
			e.log.WithError(err).WithField("address", addr).Warn("post-FRC OS read failed, dropping from pass")
			continue
		}
		dpaVersion, err := e.probeDPAVersion(ctx, h, addr)
		if err != nil {
			e.log.WithError(err).WithField("address", addr).Warn("post-FRC exploration failed, dropping from pass")
			continue
		}
		hwpid, hwpidVersion, err := e.readHWPID(ctx, h, addr)
		if err != nil {
			e.log.WithError(err).WithField("address", addr).Warn("post-FRC HWPID read failed, dropping from pass")
			continue
		}
		devices = append(devices, deviceInfo{
			address: addr, mid: os.MID, hwpid: hwpid, hwpidVersion: hwpidVersion,
			osVersion: os.OsVersion, osBuild: os.OsBuild, dpaVersion: dpaVersionString(dpaVersion),
			discovered: nc.discovered[addr],
		})
	}
	return devices, nil
}
