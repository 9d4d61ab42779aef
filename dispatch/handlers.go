package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/embedfrc"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/radio"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/registry"
)

type rawParams struct {
	Req struct {
		RData string `json:"rData"`
	} `json:"req"`
	Repeat int `json:"repeat,omitempty"`
}

// rawHandler implements iqrfRaw: the input rData is the wire-level
// request frame verbatim; the response rData is the wire-level response
// frame verbatim, no driver translation at all.
func (d *Dispatcher) rawHandler(ctx context.Context, req Request) Envelope {
	var p rawParams
	if err := json.Unmarshal(req.Data, &p); err != nil {
		return errorEnvelope(req.MType, req.MsgID, StatusMsgTypeUnknown, "malformed iqrfRaw request: "+err.Error(), nil)
	}
	rawBytes, err := dpa.DecodeDottedHex(p.Req.RData)
	if err != nil {
		return errorEnvelope(req.MType, req.MsgID, StatusDriverRequestFail, err.Error(), nil)
	}
	var frame dpa.Frame
	if err := frame.UnmarshalBinary(rawBytes); err != nil {
		return errorEnvelope(req.MType, req.MsgID, StatusDriverRequestFail, err.Error(), nil)
	}

	h, err := d.radio.Acquire(ctx)
	if err != nil {
		return errorEnvelope(req.MType, req.MsgID, StatusExclusiveUnavailable, err.Error(), nil)
	}
	defer h.Release()

	timeout := radio.DefaultTimeoutLocal
	if frame.NADR != dpa.CoordinatorAddress {
		timeout = radio.DefaultTimeoutRouted
	}
	reqTs := time.Now()
	res := h.ExecuteTransaction(ctx, frame, timeout, p.Repeat)
	resTs := time.Now()
	raw := verboseTrace(req, frame, reqTs, res, resTs)
	if res.Code != radio.TRN_OK {
		return errorEnvelope(req.MType, req.MsgID, int(res.Code), res.Code.String(), raw)
	}

	respBytes, _ := res.Response.MarshalBinary()
	rsp, _ := json.Marshal(map[string]string{"rData": dpa.EncodeDottedHex(respBytes)})
	return okEnvelope(req.MType, req.MsgID, rsp, raw)
}

type rawHdpParams struct {
	NAdr   uint16 `json:"nadr"`
	PNum   byte   `json:"pnum"`
	PCmd   byte   `json:"pcmd"`
	HwpId  uint16 `json:"hwpid"`
	PData  string `json:"pdata"`
	Repeat int    `json:"repeat,omitempty"`
}

type rawHdpResult struct {
	NAdr     uint16 `json:"nadr"`
	PNum     byte   `json:"pnum"`
	PCmd     byte   `json:"pcmd"`
	HwpId    uint16 `json:"hwpid"`
	RCode    byte   `json:"rcode"`
	DpaValue byte   `json:"dpaValue"`
	PData    string `json:"pdata"`
}

// rawHdpHandler implements iqrfRawHdp: the caller supplies structured
// frame fields directly (no driver translation), and gets back the
// structured response fields plus the response payload.
func (d *Dispatcher) rawHdpHandler(ctx context.Context, req Request) Envelope {
	var p rawHdpParams
	if err := json.Unmarshal(req.Data, &p); err != nil {
		return errorEnvelope(req.MType, req.MsgID, StatusMsgTypeUnknown, "malformed iqrfRawHdp request: "+err.Error(), nil)
	}
	if p.HwpId == 0 {
		p.HwpId = dpa.HWPIDDoNotCheck
	}
	body, err := dpa.DecodeDottedHex(p.PData)
	if err != nil {
		return errorEnvelope(req.MType, req.MsgID, StatusDriverRequestFail, err.Error(), nil)
	}
	frame := dpa.Frame{NADR: p.NAdr, PNUM: p.PNum, PCMD: p.PCmd, HWPID: p.HwpId, Body: body}

	h, err := d.radio.Acquire(ctx)
	if err != nil {
		return errorEnvelope(req.MType, req.MsgID, StatusExclusiveUnavailable, err.Error(), nil)
	}
	defer h.Release()

	timeout := radio.DefaultTimeoutLocal
	if p.NAdr != dpa.CoordinatorAddress {
		timeout = radio.DefaultTimeoutRouted
	}
	reqTs := time.Now()
	res := h.ExecuteTransaction(ctx, frame, timeout, p.Repeat)
	resTs := time.Now()
	raw := verboseTrace(req, frame, reqTs, res, resTs)
	if res.Code != radio.TRN_OK {
		return errorEnvelope(req.MType, req.MsgID, int(res.Code), res.Code.String(), raw)
	}

	result := rawHdpResult{
		NAdr: res.Response.NADR, PNum: res.Response.PNUM, PCmd: res.Response.PCMD, HwpId: res.Response.HWPID,
		RCode: res.Response.RCode, DpaValue: res.Response.DPAValue, PData: dpa.EncodeDottedHex(res.Response.Body),
	}
	rsp, _ := json.Marshal(result)
	return okEnvelope(req.MType, req.MsgID, rsp, raw)
}

// driverBackedHandler implements the generic template every
// iqrfEmbed*/iqrfLight_*/iqrfSensor_*/iqrfBinaryoutput_*/iqrfDali_*
// message type shares: resolve the caller's driver context, translate
// the request through it, run the transaction, and translate the
// response back through the same context.
func (d *Dispatcher) driverBackedHandler(mType string) Handler {
	return func(ctx context.Context, req Request) Envelope {
		params := parseAddressedParams(req.Data)
		driverCtx, ok := d.reg.ContextForAddress(params.NAdr, params.HwpId)
		if !ok {
			return driverErrorEnvelope(mType, req.MsgID, StatusDriverRequestFail, "no driver context available", nil)
		}

		rawReqJSON, err := driverCtx.CallRequest(mType, req.Data)
		if err != nil {
			return driverErrorEnvelope(mType, req.MsgID, StatusDriverRequestFail, err.Error(), nil)
		}
		var rawHdp dpa.RawHDP
		if err := json.Unmarshal(rawReqJSON, &rawHdp); err != nil {
			return driverErrorEnvelope(mType, req.MsgID, StatusDriverRequestFail, "malformed driver request output: "+err.Error(), nil)
		}
		frame, err := rawHdp.ToRequestFrame(params.NAdr, params.HwpId)
		if err != nil {
			return driverErrorEnvelope(mType, req.MsgID, StatusDriverRequestFail, err.Error(), nil)
		}

		h, err := d.radio.Acquire(ctx)
		if err != nil {
			return errorEnvelope(mType, req.MsgID, StatusExclusiveUnavailable, err.Error(), nil)
		}
		defer h.Release()

		timeout := radio.DefaultTimeoutLocal
		if params.NAdr != dpa.CoordinatorAddress {
			timeout = radio.DefaultTimeoutRouted
		}
		reqTs := time.Now()
		res := h.ExecuteTransaction(ctx, frame, timeout, params.Repeat)
		resTs := time.Now()
		raw := verboseTrace(req, frame, reqTs, res, resTs)
		if res.Code != radio.TRN_OK {
			return errorEnvelope(mType, req.MsgID, int(res.Code), res.Code.String(), raw)
		}

		respJSON, _ := json.Marshal(dpa.FromResponseFrame(res.Response, req.Data))
		resultJSON, err := driverCtx.CallResponse(mType, respJSON)
		if err != nil {
			return driverErrorEnvelope(mType, req.MsgID, int(radio.TRN_BAD_RESPONSE), err.Error(), raw)
		}

		var result interface{}
		_ = json.Unmarshal(resultJSON, &result)
		rsp := map[string]interface{}{"result": result}
		d.applyMetadata(ctx, int(params.NAdr), rsp)
		rspBytes, _ := json.Marshal(rsp)
		return okEnvelope(mType, req.MsgID, rspBytes, raw)
	}
}

type frcParams struct {
	addressedParams
	SelectedNodes  []uint16 `json:"selectedNodes,omitempty"`
	GetExtraResult bool     `json:"getExtraResult,omitempty"`
}

type frcDriverRequest struct {
	dpa.RawHDP
	RetPars []string `json:"retpars,omitempty"`
}

// frcBackedHandler implements the two-phase FRC-standard template
// (iqrfSensor_Frc, iqrfDali_Frc, iqrfLight_Frc*): the Send frame is built
// from the driver request's pNum/pCmd/rdata. When the caller sets
// getExtraResult and the driver returns at least two retpars entries, a
// standard FRC ExtraResult request built here follows; the contents of
// retpars are not used. The handler translates the combined reply
// through the same driver's response function. Neither phase is ever
// retried: FRC transactions pass a fixed retries=0.
func (d *Dispatcher) frcBackedHandler(mType string) Handler {
	return func(ctx context.Context, req Request) Envelope {
		var p frcParams
		_ = json.Unmarshal(req.Data, &p)

		driverCtx, ok := d.reg.Get(registry.DefaultContextID)
		if !ok {
			return driverErrorEnvelope(mType, req.MsgID, StatusDriverRequestFail, "no driver context available", nil)
		}

		rawReqJSON, err := driverCtx.CallRequest(mType, req.Data)
		if err != nil {
			return driverErrorEnvelope(mType, req.MsgID, StatusDriverRequestFail, err.Error(), nil)
		}
		var driverReq frcDriverRequest
		if err := json.Unmarshal(rawReqJSON, &driverReq); err != nil {
			return driverErrorEnvelope(mType, req.MsgID, StatusDriverRequestFail, "malformed FRC driver request output: "+err.Error(), nil)
		}
		sendFrame, err := driverReq.RawHDP.ToRequestFrame(dpa.CoordinatorAddress, dpa.HWPIDDoNotCheck)
		if err != nil {
			return driverErrorEnvelope(mType, req.MsgID, StatusDriverRequestFail, err.Error(), nil)
		}

		h, err := d.radio.Acquire(ctx)
		if err != nil {
			return errorEnvelope(mType, req.MsgID, StatusExclusiveUnavailable, err.Error(), nil)
		}
		defer h.Release()

		sendTs := time.Now()
		res := h.ExecuteTransaction(ctx, sendFrame, radio.DefaultTimeoutFRC, 0)
		sendDoneTs := time.Now()
		var raw []RawTrace
		if req.Verbose {
			raw = append(raw, buildRawTrace(sendFrame, sendTs, res, sendDoneTs))
		}
		if res.Code != radio.TRN_OK {
			return errorEnvelope(mType, req.MsgID, int(res.Code), res.Code.String(), raw)
		}

		combinedBody := append([]byte(nil), res.Response.Body...)
		if p.GetExtraResult && len(driverReq.RetPars) > 1 {
			extraFrame := embedfrc.ExtraResultRequest(dpa.HWPIDDoNotCheck)
			extraTs := time.Now()
			extraRes := h.ExecuteTransaction(ctx, extraFrame, radio.DefaultTimeoutFRC, 0)
			extraDoneTs := time.Now()
			if req.Verbose {
				raw = append(raw, buildRawTrace(extraFrame, extraTs, extraRes, extraDoneTs))
			}
			if extraRes.Code == radio.TRN_OK {
				combinedBody = append(combinedBody, extraRes.Response.Body...)
			}
		}

		synthesized := res.Response
		synthesized.Body = combinedBody
		respJSON, _ := json.Marshal(dpa.FromResponseFrame(synthesized, req.Data))
		resultJSON, err := driverCtx.CallResponse(mType, respJSON)
		if err != nil {
			return driverErrorEnvelope(mType, req.MsgID, int(radio.TRN_BAD_RESPONSE), err.Error(), raw)
		}

		var result interface{}
		_ = json.Unmarshal(resultJSON, &result)
		rsp := map[string]interface{}{"result": d.reshapeFRCResult(ctx, p.SelectedNodes, result)}
		rspBytes, _ := json.Marshal(rsp)
		return okEnvelope(mType, req.MsgID, rspBytes, raw)
	}
}

// verboseTrace returns the single-entry wire trace for req if it asked
// for data.returnVerbose, or nil otherwise.
func verboseTrace(req Request, frame dpa.Frame, reqTs time.Time, res radio.TransactionResult, resTs time.Time) []RawTrace {
	if !req.Verbose {
		return nil
	}
	return []RawTrace{buildRawTrace(frame, reqTs, res, resTs)}
}

// reshapeFRCResult optionally zips a flat per-node result array with
// store-known mid/hwpid into {nAdr, mid, hwpid, <item>} objects, the
// shape callers asking for selectedNodes annotation expect. Results that
// aren't a flat array matching len(selectedNodes) pass through unchanged.
func (d *Dispatcher) reshapeFRCResult(ctx context.Context, selectedNodes []uint16, result interface{}) interface{} {
	items, ok := result.([]interface{})
	if !ok || len(selectedNodes) == 0 || len(items) != len(selectedNodes) {
		return result
	}
	out := make([]map[string]interface{}, len(items))
	for i, addr := range selectedNodes {
		entry := map[string]interface{}{"nAdr": addr, "item": items[i]}
		if dev, err := d.store.Devices.ByAddress(ctx, int(addr)); err == nil {
			entry["mid"] = dev.MID
			entry["hwpid"] = dev.HWPID
		}
		out[i] = entry
	}
	return out
}
