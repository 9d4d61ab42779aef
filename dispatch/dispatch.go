// Package dispatch implements the Message Dispatcher: it turns an
// incoming messaging-layer document into a DPA transaction (directly, or
// translated through a driver context) and renders the outcome back into
// the response envelope every handler shares.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/config"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/enum"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/radio"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/registry"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/store"
)

// Service-level status codes, in addition to the radio.ErrorCode values
// a handler passes through verbatim when nonzero.
const (
	StatusOK                   = 0
	StatusMsgTypeUnknown       = 1001
	StatusExclusiveUnavailable = 1002
	StatusNotRunning           = 1003
	StatusReadInProgress       = 1004
	StatusConfigFailure        = 1005

	// StatusDriverRequestFail mirrors the real TRN_ERROR_FAIL outcome: a
	// driver's <mType>_Request_req threw before any transaction reached
	// the coordinator, so no radio.ErrorCode applies. Picked clear of
	// both the wire range (0-6) and the service range (1001-1005).
	StatusDriverRequestFail = 100
)

// Request is one incoming messaging-layer document after envelope
// unwrapping.
type Request struct {
	MType   string
	MsgID   string
	Data    json.RawMessage
	Verbose bool
}

// RawTrace is one verbose-mode wire trace entry.
type RawTrace struct {
	Request    string    `json:"request"`
	RequestTs  time.Time `json:"requestTs"`
	Response   string    `json:"response,omitempty"`
	ResponseTs time.Time `json:"responseTs,omitempty"`
}

// EnvelopeData is the "data" object of a response envelope.
type EnvelopeData struct {
	MsgID     string          `json:"msgId"`
	Rsp       json.RawMessage `json:"rsp,omitempty"`
	Status    int             `json:"status"`
	StatusStr string          `json:"statusStr"`
	Raw       []RawTrace      `json:"raw,omitempty"`
}

// Envelope is the response document every handler produces.
type Envelope struct {
	MType string       `json:"mType"`
	Data  EnvelopeData `json:"data"`
}

func errorEnvelope(mType, msgID string, status int, statusStr string, raw []RawTrace) Envelope {
	return Envelope{MType: mType, Data: EnvelopeData{MsgID: msgID, Status: status, StatusStr: statusStr, Raw: raw}}
}

// driverErrorEnvelope reports a driver-request-translation or
// response-translation failure: the driver's own message surfaces under
// data.rsp.errorStr, the shape a caller decoding a failed result expects,
// in addition to the usual data.statusStr.
func driverErrorEnvelope(mType, msgID string, status int, message string, raw []RawTrace) Envelope {
	rsp, _ := json.Marshal(map[string]string{"errorStr": message})
	return Envelope{MType: mType, Data: EnvelopeData{MsgID: msgID, Rsp: rsp, Status: status, StatusStr: message, Raw: raw}}
}

func okEnvelope(mType, msgID string, rsp json.RawMessage, raw []RawTrace) Envelope {
	return Envelope{MType: mType, Data: EnvelopeData{MsgID: msgID, Rsp: rsp, Status: StatusOK, StatusStr: "ok", Raw: raw}}
}

// verboseFlag picks data.returnVerbose out of an incoming request without
// requiring every params struct to carry it.
type verboseFlag struct {
	ReturnVerbose bool `json:"returnVerbose"`
}

func parseVerbose(data json.RawMessage) bool {
	var v verboseFlag
	_ = json.Unmarshal(data, &v)
	return v.ReturnVerbose
}

// buildRawTrace renders one DPA transaction's request/response pair into
// the verbose-mode wire trace a caller asking for data.returnVerbose
// expects under data.raw[].
func buildRawTrace(reqFrame dpa.Frame, reqTs time.Time, res radio.TransactionResult, resTs time.Time) RawTrace {
	reqBytes, _ := reqFrame.MarshalBinary()
	trace := RawTrace{Request: dpa.EncodeDottedHex(reqBytes), RequestTs: reqTs}
	if res.Code == radio.TRN_OK {
		respBytes, _ := res.Response.MarshalBinary()
		trace.Response = dpa.EncodeDottedHex(respBytes)
		trace.ResponseTs = resTs
	}
	return trace
}

// Handler turns one Request into a response Envelope. A handler never
// panics on malformed input; it reports StatusMsgTypeUnknown or a
// driver/wire status code instead.
type Handler func(ctx context.Context, req Request) Envelope

// Dispatcher owns the handler table and every collaborator a handler
// needs to run a DPA transaction.
type Dispatcher struct {
	store      *store.Store
	radio      *radio.Coordinator
	reg        *registry.Registry
	enumerator *enum.Enumerator
	cfg        config.Enumerator
	log        *logrus.Entry

	handlers map[string]Handler
}

// driverFamilyPrefixes are the message-type prefixes resolved to the
// generic driver-backed handler template; every other prefix is
// StatusMsgTypeUnknown unless explicitly registered (iqrfRaw, iqrfRawHdp).
var driverFamilyPrefixes = []string{
	"iqrfEmbed", "iqrfLight_", "iqrfSensor_", "iqrfBinaryoutput_", "iqrfDali_",
}

// frcSuffixes mark a driver-backed message type as FRC-standard, routing
// it through the two-phase frcBackedHandler instead of the plain one.
var frcSuffixes = []string{"_Frc", "_FrcMemoryRead"}

// New builds a Dispatcher with its fixed handlers registered.
func New(s *store.Store, r *radio.Coordinator, reg *registry.Registry, enumerator *enum.Enumerator, cfg config.Enumerator, log *logrus.Entry) *Dispatcher {
	d := &Dispatcher{store: s, radio: r, reg: reg, enumerator: enumerator, cfg: cfg, log: log, handlers: map[string]Handler{}}
	d.handlers["iqrfRaw"] = d.rawHandler
	d.handlers["iqrfRawHdp"] = d.rawHdpHandler
	d.handlers["iqrfDb_Reset"] = d.dbResetHandler
	d.handlers["iqrfDb_ReloadDrivers"] = d.dbReloadDriversHandler
	d.handlers["iqrfDb_Enumerate"] = d.dbEnumerateHandler
	return d
}

// Dispatch routes req to its handler and returns the response envelope.
// It never returns an error: every failure mode is represented in the
// envelope's status/statusStr fields. A request with data.returnVerbose
// set carries its wire trace back in data.raw[], regardless of which
// handler produces the response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Envelope {
	req.Verbose = req.Verbose || parseVerbose(req.Data)

	if h, ok := d.handlers[req.MType]; ok {
		return h(ctx, req)
	}
	if isFRCType(req.MType) {
		return d.frcBackedHandler(req.MType)(ctx, req)
	}
	if hasDriverFamilyPrefix(req.MType) {
		return d.driverBackedHandler(req.MType)(ctx, req)
	}
	d.log.WithField("mType", req.MType).Warn("dispatch: unknown message type")
	return errorEnvelope(req.MType, req.MsgID, StatusMsgTypeUnknown, "unknown message type", nil)
}

func hasDriverFamilyPrefix(mType string) bool {
	for _, p := range driverFamilyPrefixes {
		if len(mType) >= len(p) && mType[:len(p)] == p {
			return true
		}
	}
	return false
}

func isFRCType(mType string) bool {
	if !hasDriverFamilyPrefix(mType) {
		return false
	}
	for _, suf := range frcSuffixes {
		if len(mType) >= len(suf) && mType[len(mType)-len(suf):] == suf {
			return true
		}
	}
	return false
}

// addressedParams is the common subset of request parameters every
// driver-backed message carries: the target node and the HWPID to
// validate against it.
type addressedParams struct {
	NAdr   uint16 `json:"nAdr"`
	HwpId  uint16 `json:"hwpId"`
	Repeat int    `json:"repeat,omitempty"`
}

func parseAddressedParams(data json.RawMessage) addressedParams {
	p := addressedParams{HwpId: 0xFFFF}
	_ = json.Unmarshal(data, &p)
	return p
}

func (d *Dispatcher) applyMetadata(ctx context.Context, address int, rsp map[string]interface{}) {
	if !d.cfg.MetadataToMessages {
		return
	}
	dev, err := d.store.Devices.ByAddress(ctx, address)
	if err != nil || !dev.Metadata.Valid || dev.Metadata.String == "" {
		return
	}
	var meta interface{}
	if err := json.Unmarshal([]byte(dev.Metadata.String), &meta); err != nil {
		return
	}
	rsp["metaData"] = meta
}
