package dpa

import "fmt"

// ErrBadResponse reports a malformed length, truncated frame, or mismatched
// (nadr, pnum, pcmd) between a request and its response.
type ErrBadResponse struct {
	Reason string
}

func (e ErrBadResponse) Error() string {
	return fmt.Sprintf("dpa: bad response: %s", e.Reason)
}

// ErrProtocol reports a non-zero response code with the async bit clear.
type ErrProtocol struct {
	Code byte
}

func (e ErrProtocol) Error() string {
	return fmt.Sprintf("dpa: protocol error, rcode=0x%02X", e.Code)
}
