package dali

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

func TestSendCommandsRoundTrip(t *testing.T) {
	Convey("Given one DALI command sent asynchronously", t, func() {
		req := SendCommandsRequest(5, dpa.HWPIDDoNotCheck, []uint16{0x00FF}, true)
		Convey("Then the request uses the async PCMD shared with Light", func() {
			So(req.PNUM, ShouldEqual, PNUM)
			So(req.PCMD, ShouldEqual, CmdSendCommandsAsync)
			So(req.Body, ShouldResemble, []byte{0xFF, 0x00})
		})
	})

	Convey("Given a response with one status/value answer", t, func() {
		resp := dpa.ResponseFrame{PNUM: PNUM, RCode: 0x00, Body: []byte{0x00, 0x42}}
		Convey("Then ParseSendCommandsResponse decodes it", func() {
			answers, err := ParseSendCommandsResponse(resp)
			So(err, ShouldBeNil)
			So(answers, ShouldResemble, []Answer{{Status: 0x00, Value: 0x42}})
		})
	})
}
