// Package wal is the write-ahead log of the in-memory backend.
//
// Every successful mutation is appended to the log before it is
// acknowledged, so state written after the latest snapshot survives a
// crash. A snapshot records the segment that was opened when it was taken;
// recovery loads the snapshot and replays that segment and every later one.
//
// Segment file layout:
//
//	wal-<segment-id>.log
//	[magic:8 "MGWAL\x00\x00\x01"][header length:2][header JSON]
//	[Entry]*
//	[checksum:32 SHA-256 of all bytes above] (absent on the active segment)
//
// Entry layout:
//
//	[Length:4][CRC32:4][Op:1][Payload:Length-5]
//
// CRC32 covers Op and Payload. The payload is JSON, sealed with the segment
// cipher when the log is encrypted. A torn tail on the last segment ends
// the replay of that segment without error.
package wal
