// Package message implements the wire framing peers exchange.
//
// A frame is a 4 byte type tag, a 4 byte big-endian payload length N,
// then N payload bytes:
//
//	+--------+--------+-----------+
//	| type 4 | len 4  | payload N |
//	+--------+--------+-----------+
//
// There is no handshake, version or checksum.
package message
