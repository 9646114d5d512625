package message

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Wire encoding is not constrained beyond round-trip symmetry. This
// codec uses encoding/gob: every message here is a plain Go struct with
// no interface fields beyond the outer Message, gob needs no schema or
// generated code to round-trip them, and gob is the standard library's
// own answer to exactly this problem (it is what net/rpc uses to move
// Go values between processes). See DESIGN.md for why this is the one
// place in the module that reaches for the standard library instead of
// a generated wire format.
func init() {
	gob.Register(PreAccept{})
	gob.Register(PreAcceptOK{})
	gob.Register(Accept{})
	gob.Register(AcceptOK{})
	gob.Register(Commit{})
	gob.Register(Prepare{})
	gob.Register(PrepareOK{})
	gob.Register(TryPreAccept{})
	gob.Register(TryPreAcceptOK{})
	gob.Register(SyncRequest{})
	gob.Register(SyncResponse{})
}

// Encode serializes msg for transport.
func Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&msg); err != nil {
		return nil, fmt.Errorf("message: encode %T: %w", msg, err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a message previously produced by Encode.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("message: decode: %w", err)
	}
	return msg, nil
}
