// Package dpa provides tools to read and write DPA (Direct Peripheral
// Access) messages, the application-layer protocol carried over an IQRF
// mesh network.
//
// It implements the encoding.BinaryMarshaler and encoding.BinaryUnmarshaler
// interfaces on Frame and ResponseFrame, and a driver-oriented JSON view
// (RawHDP) that round-trips through them.
package dpa
