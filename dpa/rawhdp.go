package dpa

import "encoding/json"

// RawHDP is the driver-oriented JSON view of a DPA message: the shape every
// `<mType>_Request_req` / `<mType>_Response_rsp` driver function exchanges
// with the dispatcher.
type RawHDP struct {
	PNum  string          `json:"pNum"`
	PCmd  string          `json:"pCmd"`
	HWPID string          `json:"hwpId,omitempty"`
	RData string          `json:"rdata"`
	// OriginalRequest carries the request JSON that produced the
	// transaction this response belongs to. Some drivers (notably
	// Sensor breakdown parsing) need the request parameters to interpret
	// the response and cannot be written as pure functions of the
	// response bytes alone.
	OriginalRequest json.RawMessage `json:"originalRequest,omitempty"`
}

// ToRequestFrame converts the driver JSON view of a request into a raw
// request frame. nadr and hwpid come from the calling context, not from the
// JSON itself, since drivers only ever see pNum/pCmd/rdata.
func (r RawHDP) ToRequestFrame(nadr uint16, hwpid uint16) (Frame, error) {
	pnum, err := DecodeDottedHex(r.PNum)
	if err != nil || len(pnum) != 1 {
		return Frame{}, ErrBadResponse{Reason: "invalid pNum in driver request"}
	}
	pcmd, err := DecodeDottedHex(r.PCmd)
	if err != nil || len(pcmd) != 1 {
		return Frame{}, ErrBadResponse{Reason: "invalid pCmd in driver request"}
	}
	body, err := DecodeDottedHex(r.RData)
	if err != nil {
		return Frame{}, ErrBadResponse{Reason: "invalid rdata in driver request"}
	}
	return Frame{
		NADR:  nadr,
		PNUM:  pnum[0],
		PCMD:  pcmd[0],
		HWPID: hwpid,
		Body:  body,
	}, nil
}

// FromResponseFrame converts a raw response frame into the driver JSON view,
// attaching originalRequest so response drivers that need the request
// parameters (e.g. Sensor breakdown parsing) can recover them.
func FromResponseFrame(f ResponseFrame, originalRequest json.RawMessage) RawHDP {
	body := make([]byte, 0, len(f.Body)+2)
	body = append(body, f.RCode, f.DPAValue)
	body = append(body, f.Body...)
	return RawHDP{
		PNum:            EncodeDottedHex([]byte{f.PNUM}),
		PCmd:            EncodeDottedHex([]byte{f.PCMD}),
		RData:           EncodeDottedHex(body),
		OriginalRequest: originalRequest,
	}
}
