// Package client implements the UDP transport for the mark-list protocol.
// A fetch opens an unconnected datagram socket on an ephemeral port, sends
// the fixed request, waits for one reply from any source up to a timeout and
// hands the bytes to the protocol decoder.
package client
