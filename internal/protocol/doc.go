// Package protocol implements the mark-list wire codec.
// It defines the fixed 16-byte request datagram and decodes the reply: a
// 4-byte record count followed by 20-byte name/mark slots.
package protocol
