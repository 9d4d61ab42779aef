package dpa

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFrameRoundTrip(t *testing.T) {
	Convey("Given a well-formed OS Read request frame to the coordinator", t, func() {
		f := Frame{
			NADR:  0x0000,
			PNUM:  0x02,
			PCMD:  0x00,
			HWPID: HWPIDDoNotCheck,
		}

		Convey("Then MarshalBinary followed by UnmarshalBinary is the identity", func() {
			b, err := f.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldResemble, []byte{0x00, 0x00, 0x02, 0x00, 0xFF, 0xFF})

			var decoded Frame
			So(decoded.UnmarshalBinary(b), ShouldBeNil)
			So(decoded, ShouldResemble, f)
		})
	})

	Convey("Given a truncated frame", t, func() {
		var f Frame
		Convey("Then UnmarshalBinary returns ErrBadResponse", func() {
			err := f.UnmarshalBinary([]byte{0x00, 0x00, 0x02})
			So(err, ShouldHaveSameTypeAs, ErrBadResponse{})
		})
	})
}

func TestResponseFrameRoundTrip(t *testing.T) {
	Convey("Given the OS Read fixture response from spec scenario S2", t, func() {
		raw := []byte{0x00, 0x00, 0x02, 0x80, 0xFF, 0xFF, 0x00, 0x00, 0xD8, 0x08, 0x43, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00}

		Convey("Then UnmarshalBinary decodes the header fields", func() {
			var f ResponseFrame
			So(f.UnmarshalBinary(raw), ShouldBeNil)
			So(f.NADR, ShouldEqual, 0x0000)
			So(f.PNUM, ShouldEqual, 0x02)
			So(f.PCMD, ShouldEqual, 0x00)
			So(f.RCode, ShouldEqual, 0x00)
			So(f.DPAValue, ShouldEqual, 0x00)
			So(f.Body, ShouldResemble, []byte{0xD8, 0x08, 0x43, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00})

			Convey("And MarshalBinary reproduces the original bytes", func() {
				b, err := f.MarshalBinary()
				So(err, ShouldBeNil)
				So(b, ShouldResemble, raw)
			})
		})
	})
}

func TestIsAsync(t *testing.T) {
	Convey("Given an rcode with the async bit set", t, func() {
		code, async := IsAsync(0x80)
		Convey("Then the bit is reported and stripped", func() {
			So(async, ShouldBeTrue)
			So(code, ShouldEqual, 0x00)
		})
	})

	Convey("Given a plain error rcode", t, func() {
		code, async := IsAsync(0x03)
		Convey("Then async is false and the code passes through", func() {
			So(async, ShouldBeFalse)
			So(code, ShouldEqual, 0x03)
		})
	})
}

func TestDottedHexRoundTrip(t *testing.T) {
	Convey("Given the bytes of a request frame", t, func() {
		b := []byte{0x00, 0x00, 0x04, 0x00, 0xff, 0xff, 0x00, 0x00}

		Convey("Then EncodeDottedHex followed by DecodeDottedHex is the identity", func() {
			s := EncodeDottedHex(b)
			So(s, ShouldEqual, "00.00.04.00.ff.ff.00.00")

			decoded, err := DecodeDottedHex(s)
			So(err, ShouldBeNil)
			So(decoded, ShouldResemble, b)
		})
	})
}
