package flock

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// A Payload is the basic structure in which information is sent to and from
// the gateway: an op code, an optional data document, and, on dispatch
// frames, a sequence number and event name.
type Payload struct {
	Operation Operation           `json:"op"`
	Data      jsoniter.RawMessage `json:"d,omitempty"`
	// Provided only for Dispatch operations:
	Sequence *int64 `json:"s,omitempty"`
	Event    string `json:"t,omitempty"`
}

// IsEvent reports whether the payload is a dispatch frame, i.e. whether the
// event name and data document are meaningful. Any other op carries protocol
// control data.
func (p *Payload) IsEvent() bool { return p.Operation == OpDispatch }

// Seq returns the sequence number, or 0 when the frame carries none.
func (p *Payload) Seq() int64 {
	if p.Sequence == nil {
		return 0
	}
	return *p.Sequence
}

// An Operation is contained in a Payload and defines what should occur as a
// result of that payload.
type Operation uint8

const (
	// dispatches an event
	OpDispatch Operation = 0
	// used for ping checking
	OpHeartbeat Operation = 1
	// used for client handshake
	OpIdentify Operation = 2
	// used to update the client status
	OpStatusUpdate Operation = 3
	// used to resume a closed connection
	OpResume Operation = 6
	// used to redirect clients to a new gateway
	OpReconnect Operation = 7
	// used to notify clients they have an invalid session id
	OpInvalidSession Operation = 9
	// server handshake, carries the heartbeat interval
	OpHello Operation = 10
	// acknowledges a heartbeat
	OpHeartbeatAck Operation = 11
	// requests a member-list window sync (undocumented, reverse-engineered)
	OpRequestMemberList Operation = 14
	// requests an application command search (undocumented)
	OpRequestCommands Operation = 24
)

// inflate decompresses the provided zlib-compressed bytes.
func inflate(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

// DecodePayload parses one raw gateway frame. Compressed frames are inflated
// first. A frame that is not well-formed JSON is a fatal decode error, not
// something to retry.
func DecodePayload(b []byte) (*Payload, error) {
	if len(b) > 0 && b[0] != '{' && b[0] != '[' {
		var err error
		if b, err = inflate(b); err != nil {
			return nil, errors.Wrap(err, "flock: inflating frame")
		}
	}

	p := &Payload{}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, errors.Wrap(err, "flock: malformed gateway frame")
	}

	return p, nil
}

// marshalPayload wraps data in a Payload with the given op code.
func marshalPayload(op Operation, data interface{}) (*Payload, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Payload{Operation: op, Data: b}, nil
}
