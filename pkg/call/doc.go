// Package call coordinates real-time voice and video sessions between two
// participants, such as a passenger and a driver arranging a pickup.
//
// A Manager owns at most one live session per participant. It is driven
// by three inputs: local API calls (Initiate, Accept, Reject, End), relay
// messages arriving on the signaling transport, and callbacks from the
// media engine. All three funnel through one mutex, so session status
// only ever changes at a single serialized point and events are observed
// in a consistent order.
//
// # Lifecycle
//
// A session moves through a fixed set of statuses. Outgoing calls take
// the top path, incoming calls the bottom; both converge at Connecting:
//
//	           initiate        ack            accept
//	  Idle ---> Initiating ---> RingingOutgoing ---.
//	    |                                           v            ICE
//	    |                               accept   Connecting ---> Active
//	    |  incoming                        ^         |              |
//	    '--------> RingingIncoming --------'         |     end      |
//	                     |  reject                   v      v       v
//	                     '------------> Ended <--- Ending <---------'
//
// Failed is reached from any non-terminal status when media, signaling,
// or the connection itself breaks. Ended and Failed are terminal:
// triggers arriving afterwards are discarded, which makes duplicate or
// late relay messages harmless. Unanswered calls fail after the
// configured ringing timeout.
//
// On every path out of a session, terminal included, captured devices are
// released exactly once and a history record is written.
//
// # Events
//
// Consumers observe sessions through the event bus rather than return
// values: Subscribe registers a handler per event type, and all events
// are dispatched sequentially from one goroutine in publish order.
// Publishing never blocks the manager.
//
// # References
//
//   - RFC 8829: JavaScript Session Establishment Protocol
//   - RFC 8838: Trickle ICE
package call
