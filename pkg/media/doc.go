// Package media acquires local capture tracks and establishes the
// peer-to-peer media path for call sessions.
//
// Three roles are separated so each can be swapped independently:
//
//   - Provider captures local tracks. DeviceProvider wraps real cameras
//     and microphones (V4L2 and malgo via pion/mediadevices, encoding
//     VP8 and Opus); FakeProvider synthesizes tracks for tests.
//   - Engine owns the transport handshake. WebRTCEngine speaks WebRTC via
//     pion; FakeEngine records operations for tests.
//   - Negotiator binds one session's provider output to one engine peer:
//     it runs the offer/answer exchange, buffers remote candidates that
//     arrive before the remote description and flushes them in order, and
//     releases every acquired resource exactly once on termination.
//
// The negotiator is driven from a single serialized caller (the call
// manager); engine callbacks arrive on engine goroutines and must be
// serialized by the receiver.
package media
