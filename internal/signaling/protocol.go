// Package signaling implements the per-connection protocol state machine of
// the signaling plane: admission by grant, presence notifications, verbatim
// relay of WebRTC negotiation payloads and liveness heartbeat.
package signaling

import (
	"encoding/json"
	"fmt"
)

// Incoming frames form a closed sum. The parser rejects unknown tags at the
// boundary; the state machine switches on the concrete type.
type ClientFrame interface {
	frameType() string
}

// JoinFrame presents a grant and asks for admission to a room.
type JoinFrame struct {
	RoomID string
	Token  string
}

// OfferFrame carries an SDP offer. The payload is kept raw so the relay is
// byte-for-byte verbatim.
type OfferFrame struct {
	SDP json.RawMessage
}

// AnswerFrame carries an SDP answer or pranswer.
type AnswerFrame struct {
	SDP json.RawMessage
}

// ICEFrame carries one ICE candidate.
type ICEFrame struct {
	Candidate json.RawMessage
}

// LeaveFrame asks for a graceful exit from the room.
type LeaveFrame struct{}

func (JoinFrame) frameType() string   { return "join" }
func (OfferFrame) frameType() string  { return "offer" }
func (AnswerFrame) frameType() string { return "answer" }
func (ICEFrame) frameType() string    { return "ice" }
func (LeaveFrame) frameType() string  { return "leave" }

// clientEnvelope is the superset wire shape of all incoming frames.
type clientEnvelope struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId"`
	Token     string          `json:"token"`
	SDP       json.RawMessage `json:"sdp"`
	Candidate json.RawMessage `json:"candidate"`
}

// ParseClientFrame decodes one frame. Any malformed or unknown frame is an
// error; the caller maps it to INVALID_MESSAGE.
func ParseClientFrame(data []byte) (ClientFrame, error) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case "join":
		if env.RoomID == "" || env.Token == "" {
			return nil, fmt.Errorf("join requires roomId and token")
		}
		return JoinFrame{RoomID: env.RoomID, Token: env.Token}, nil
	case "offer":
		if !present(env.SDP) {
			return nil, fmt.Errorf("offer requires sdp")
		}
		return OfferFrame{SDP: env.SDP}, nil
	case "answer":
		if !present(env.SDP) {
			return nil, fmt.Errorf("answer requires sdp")
		}
		return AnswerFrame{SDP: env.SDP}, nil
	case "ice":
		if !present(env.Candidate) {
			return nil, fmt.Errorf("ice requires candidate")
		}
		return ICEFrame{Candidate: env.Candidate}, nil
	case "leave":
		return LeaveFrame{}, nil
	case "":
		return nil, fmt.Errorf("frame missing type")
	default:
		return nil, fmt.Errorf("unknown frame type %q", env.Type)
	}
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// Outgoing frames. Each marshals to exactly one JSON object.

type joinedFrame struct {
	Type   string   `json:"type"` // "joined"
	RoomID string   `json:"roomId"`
	UserID string   `json:"userId"`
	Peers  []string `json:"peers"`
}

type peerJoinedFrame struct {
	Type        string `json:"type"` // "peer-joined"
	UserID      string `json:"userId"`
	IsInitiator bool   `json:"isInitiator"`
}

type peerLeftFrame struct {
	Type   string `json:"type"` // "peer-left"
	UserID string `json:"userId"`
}

// sdpRelayFrame forwards an offer or answer, stamped with the sender.
type sdpRelayFrame struct {
	Type       string          `json:"type"` // "offer" | "answer"
	SDP        json.RawMessage `json:"sdp"`
	FromUserID string          `json:"fromUserId"`
}

type iceRelayFrame struct {
	Type       string          `json:"type"` // "ice"
	Candidate  json.RawMessage `json:"candidate"`
	FromUserID string          `json:"fromUserId"`
}

type errorFrame struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

func marshalFrame(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All outgoing frame types marshal unconditionally.
		panic(fmt.Sprintf("signaling: marshal frame: %v", err))
	}
	return data
}
