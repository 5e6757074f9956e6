// Package signaling defines the wire protocol that coordinates call
// sessions between peers, and the transports that carry it.
//
// Every message is an Envelope: a type, a session id, sender and receiver
// ids, and an optional message-specific payload. The package performs
// encoding and validation only; session semantics live in the call package.
//
// # Architecture
//
// Peers never talk to each other directly. Each peer holds one Transport
// to a Relay, which issues authoritative session ids and routes envelopes
// between the two parties of a session. Transports are interchangeable:
// WebSocket for production, Pipe for in-memory tests and demos.
//
// # Message Flow
//
//	Caller                   Relay                   Callee
//	──────                   ─────                   ──────
//	   │                       │                       │
//	   │── call_initiate ─────>│                       │
//	   │<─ call_initiated ─────│── incoming_call ─────>│
//	   │                       │                       │
//	   │<─ call_accepted ──────│<───── call_accept ────│
//	   │                       │                       │
//	   │── call_signal (offer)────────────────────────>│
//	   │<───────────────────── call_signal (answer) ───│
//	   │<──────────────────── call_signal (candidate) ─│
//	   │── call_signal (candidate) ───────────────────>│
//	   │                       │                       │
//	   │═══════════ media flows peer-to-peer ══════════│
//	   │                       │                       │
//	   │── call_end ──────────>│── call_ended ────────>│
//
// # References
//
//   - RFC 8829 (JSEP) for offer/answer semantics
//   - RFC 8838 (Trickle ICE) for incremental candidate delivery
package signaling
