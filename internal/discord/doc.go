// Package discord is a minimal Rich Presence client for the local Discord IPC socket.
//
// Frames are an 8 byte little-endian header (opcode, payload length) followed by JSON.
// A session is a handshake answered by a READY dispatch, then SET_ACTIVITY commands
// correlated by nonce. Only unix domain sockets are supported.
package discord
