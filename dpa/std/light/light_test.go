package light

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

func TestSendLdiCommandsRoundTrip(t *testing.T) {
	Convey("Given two LDI commands sent synchronously", t, func() {
		req := SendLdiCommandsRequest(1, dpa.HWPIDDoNotCheck, []uint16{0x0201, 0x0102}, false)
		Convey("Then the request carries the commands little-endian and uses the sync PCMD", func() {
			So(req.PCMD, ShouldEqual, CmdSendLdiCommands)
			So(req.Body, ShouldResemble, []byte{0x01, 0x02, 0x02, 0x01})
		})
	})

	Convey("Given a response with one status/value pair per command", t, func() {
		resp := dpa.ResponseFrame{PNUM: PNUM, PCMD: CmdSendLdiCommands, RCode: 0x00, Body: []byte{0x00, 0x10, 0x00, 0x20}}
		Convey("Then ParseSendLdiCommandsResponse decodes both answers", func() {
			answers, err := ParseSendLdiCommandsResponse(resp)
			So(err, ShouldBeNil)
			So(answers, ShouldResemble, []Answer{{Status: 0x00, Value: 0x10}, {Status: 0x00, Value: 0x20}})
		})
	})
}

func TestSetLaiRoundTrip(t *testing.T) {
	Convey("Given a SetLai request for 3300 mV", t, func() {
		req := SetLaiRequest(1, dpa.HWPIDDoNotCheck, 3300)
		Convey("Then ParseSetLaiResponse decodes the previous voltage", func() {
			resp := dpa.ResponseFrame{PNUM: PNUM, PCMD: CmdSetLai, RCode: 0x00, Body: []byte{0xDC, 0x0C}}
			prev, err := ParseSetLaiResponse(resp)
			So(err, ShouldBeNil)
			So(prev, ShouldEqual, uint16(3292))
			So(req.PCMD, ShouldEqual, CmdSetLai)
		})
	})
}
