package signaling

import (
	"errors"
	"testing"

	"github.com/hitch-mobility/callkit/pkg/media"
)

func TestInitiate_Roundtrip(t *testing.T) {
	env, err := NewInitiate("sess-1", "passenger-7", "driver-3", InitiatePayload{
		CallType:    "video",
		Purpose:     "pickup_coordination",
		RideID:      "ride-42",
		IsEmergency: false,
		Caller:      &ParticipantInfo{ID: "passenger-7", Name: "Asha"},
	})
	if err != nil {
		t.Fatalf("NewInitiate: %v", err)
	}

	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Type != MessageCallInitiate {
		t.Errorf("Type = %q, want %q", got.Type, MessageCallInitiate)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want %q", got.SessionID, "sess-1")
	}
	if got.From != "passenger-7" || got.To != "driver-3" {
		t.Errorf("From/To = %q/%q, want passenger-7/driver-3", got.From, got.To)
	}

	p, err := DecodeInitiate(got)
	if err != nil {
		t.Fatalf("DecodeInitiate: %v", err)
	}
	if p.CallType != "video" {
		t.Errorf("CallType = %q, want %q", p.CallType, "video")
	}
	if p.Purpose != "pickup_coordination" {
		t.Errorf("Purpose = %q, want %q", p.Purpose, "pickup_coordination")
	}
	if p.RideID != "ride-42" {
		t.Errorf("RideID = %q, want %q", p.RideID, "ride-42")
	}
	if p.Caller == nil || p.Caller.Name != "Asha" {
		t.Errorf("Caller = %+v, want name Asha", p.Caller)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty frame", nil, ErrMalformedMessage},
		{"not json", []byte("not json"), ErrMalformedMessage},
		{"unknown type", []byte(`{"type":"call_teleport","sessionId":"s1"}`), ErrUnknownMessageType},
		{"missing session id", []byte(`{"type":"call_end"}`), ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Unmarshal() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMarshal_Validates(t *testing.T) {
	if _, err := Marshal(Envelope{Type: "nope", SessionID: "s1"}); !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("Marshal with unknown type: error = %v, want %v", err, ErrUnknownMessageType)
	}
	if _, err := Marshal(Envelope{Type: MessageCallEnd}); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("Marshal without session id: error = %v, want %v", err, ErrMalformedMessage)
	}
}

func TestReason_Roundtrip(t *testing.T) {
	env, err := NewReason(MessageCallReject, "s1", "driver-3", "passenger-7", "busy")
	if err != nil {
		t.Fatalf("NewReason: %v", err)
	}

	reason, err := DecodeReason(env)
	if err != nil {
		t.Fatalf("DecodeReason: %v", err)
	}
	if reason != "busy" {
		t.Errorf("reason = %q, want %q", reason, "busy")
	}
}

func TestReason_EmptyOmitsPayload(t *testing.T) {
	env, err := NewReason(MessageCallEnd, "s1", "a", "b", "")
	if err != nil {
		t.Fatalf("NewReason: %v", err)
	}
	if len(env.Payload) != 0 {
		t.Errorf("Payload = %s, want empty", env.Payload)
	}

	reason, err := DecodeReason(env)
	if err != nil {
		t.Fatalf("DecodeReason: %v", err)
	}
	if reason != "" {
		t.Errorf("reason = %q, want empty", reason)
	}
}

func TestReason_RejectsWrongType(t *testing.T) {
	if _, err := NewReason(MessageCallInitiate, "s1", "a", "b", "busy"); !errors.Is(err, ErrUnexpectedMessageType) {
		t.Errorf("NewReason(call_initiate) error = %v, want %v", err, ErrUnexpectedMessageType)
	}
	if _, err := DecodeReason(Envelope{Type: MessageCallSignal, SessionID: "s1"}); !errors.Is(err, ErrUnexpectedMessageType) {
		t.Errorf("DecodeReason(call_signal) error = %v, want %v", err, ErrUnexpectedMessageType)
	}
}

func TestSignal_OfferRoundtrip(t *testing.T) {
	env, err := NewOffer("s1", "a", "b", media.Description{Type: "offer", SDP: "v=0 test"})
	if err != nil {
		t.Fatalf("NewOffer: %v", err)
	}

	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	p, err := DecodeSignal(got)
	if err != nil {
		t.Fatalf("DecodeSignal: %v", err)
	}
	if p.Type != SignalOffer {
		t.Errorf("signal type = %q, want %q", p.Type, SignalOffer)
	}
	if p.Description == nil || p.Description.SDP != "v=0 test" {
		t.Errorf("Description = %+v, want SDP %q", p.Description, "v=0 test")
	}
	if p.Candidate != nil {
		t.Error("Candidate should be nil for an offer")
	}
}

func TestSignal_CandidateRoundtrip(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	env, err := NewCandidate("s1", "a", "b", media.Candidate{
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})
	if err != nil {
		t.Fatalf("NewCandidate: %v", err)
	}

	p, err := DecodeSignal(env)
	if err != nil {
		t.Fatalf("DecodeSignal: %v", err)
	}
	if p.Type != SignalICECandidate {
		t.Errorf("signal type = %q, want %q", p.Type, SignalICECandidate)
	}
	if p.Candidate == nil || p.Candidate.SDPMid == nil || *p.Candidate.SDPMid != "0" {
		t.Errorf("Candidate = %+v, want sdpMid %q", p.Candidate, "0")
	}
}

func TestSignal_BodyMustMatchType(t *testing.T) {
	desc := &media.Description{Type: "offer", SDP: "v=0"}
	cand := &media.Candidate{Candidate: "candidate:1"}

	tests := []struct {
		name string
		p    SignalPayload
	}{
		{"offer without description", SignalPayload{Type: SignalOffer}},
		{"offer with candidate", SignalPayload{Type: SignalOffer, Description: desc, Candidate: cand}},
		{"candidate without body", SignalPayload{Type: SignalICECandidate}},
		{"candidate with description", SignalPayload{Type: SignalICECandidate, Candidate: cand, Description: desc}},
		{"unknown signal type", SignalPayload{Type: "renegotiate", Description: desc}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSignal("s1", "a", "b", tt.p); !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("NewSignal() error = %v, want %v", err, ErrMalformedMessage)
			}
		})
	}
}

func TestDecode_TypeMismatch(t *testing.T) {
	env, err := NewIncoming("s1", "a", "b", IncomingPayload{CallType: "voice"})
	if err != nil {
		t.Fatalf("NewIncoming: %v", err)
	}

	if _, err := DecodeInitiate(env); !errors.Is(err, ErrUnexpectedMessageType) {
		t.Errorf("DecodeInitiate(incoming_call) error = %v, want %v", err, ErrUnexpectedMessageType)
	}
}

func TestDecodeInitiate_RequiresCallType(t *testing.T) {
	env, err := NewInitiate("s1", "a", "b", InitiatePayload{Purpose: "chat"})
	if err != nil {
		t.Fatalf("NewInitiate: %v", err)
	}
	if _, err := DecodeInitiate(env); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("DecodeInitiate without call type: error = %v, want %v", err, ErrMalformedMessage)
	}
}

func TestError_Roundtrip(t *testing.T) {
	env, err := NewError("s1", "", "a", "callee not reachable")
	if err != nil {
		t.Fatalf("NewError: %v", err)
	}

	msg, err := DecodeError(env)
	if err != nil {
		t.Fatalf("DecodeError: %v", err)
	}
	if msg != "callee not reachable" {
		t.Errorf("message = %q, want %q", msg, "callee not reachable")
	}
}

// TestWireFieldNames pins the JSON keys the mobile clients rely on.
func TestWireFieldNames(t *testing.T) {
	env, err := NewInitiate("sess-1", "a", "b", InitiatePayload{CallType: "voice"})
	if err != nil {
		t.Fatalf("NewInitiate: %v", err)
	}
	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}

	for _, key := range []string{"type", "sessionId", "from", "to", "payload"} {
		if _, ok := frame[key]; !ok {
			t.Errorf("frame missing key %q", key)
		}
	}
	if frame["type"] != "call_initiate" {
		t.Errorf("type = %v, want call_initiate", frame["type"])
	}

	payload, ok := frame["payload"].(map[string]interface{})
	if !ok {
		t.Fatalf("payload is %T, want object", frame["payload"])
	}
	if payload["callType"] != "voice" {
		t.Errorf("payload.callType = %v, want voice", payload["callType"])
	}
}

func TestMessageType_IsValid(t *testing.T) {
	tests := []struct {
		mt   MessageType
		want bool
	}{
		{MessageCallInitiate, true},
		{MessageCallInitiated, true},
		{MessageIncomingCall, true},
		{MessageCallAccept, true},
		{MessageCallAccepted, true},
		{MessageCallReject, true},
		{MessageCallRejected, true},
		{MessageCallEnd, true},
		{MessageCallEnded, true},
		{MessageCallSignal, true},
		{MessageCallError, true},
		{MessageType(""), false},
		{MessageType("call_hold"), false},
	}

	for _, tt := range tests {
		got := tt.mt.IsValid()
		if got != tt.want {
			t.Errorf("MessageType(%q).IsValid() = %v, want %v", tt.mt, got, tt.want)
		}
	}
}
