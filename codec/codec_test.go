package codec

import (
	"testing"

	"relaygo/envelope"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := &JSONCodec{}

	original := &envelope.RequestEnvelope{
		Method: "Arith.Add",
		Args:   []byte(`[1,2]`),
	}

	data, err := c.Pack(original)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	var decoded envelope.RequestEnvelope
	if err := c.Unpack(data, &decoded); err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}

	if original.Method != decoded.Method {
		t.Errorf("Method mismatch: got %s, want %s", decoded.Method, original.Method)
	}
	if string(original.Args) != string(decoded.Args) {
		t.Errorf("Args mismatch: got %s, want %s", decoded.Args, original.Args)
	}
	if c.Type() != TypeJSON {
		t.Errorf("expect TypeJSON, got %v", c.Type())
	}
}

func TestMsgpackCodecRoundTrip(t *testing.T) {
	c := &MsgpackCodec{}

	original := &envelope.ResponseEnvelope{
		Status:  envelope.StatusOK,
		Payload: []byte("hello"),
	}

	data, err := c.Pack(original)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	var decoded envelope.ResponseEnvelope
	if err := c.Unpack(data, &decoded); err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}

	if decoded.Status != original.Status {
		t.Errorf("Status mismatch: got %d, want %d", decoded.Status, original.Status)
	}
	if string(decoded.Payload) != string(original.Payload) {
		t.Errorf("Payload mismatch: got %s, want %s", decoded.Payload, original.Payload)
	}
	if c.Type() != TypeMsgpack {
		t.Errorf("expect TypeMsgpack, got %v", c.Type())
	}
}

func TestGetDefaultsToJSON(t *testing.T) {
	if _, ok := Get(Type(99)).(*JSONCodec); !ok {
		t.Fatal("expect Get to default to JSONCodec for unrecognized types")
	}
	if _, ok := Get(TypeMsgpack).(*MsgpackCodec); !ok {
		t.Fatal("expect Get(TypeMsgpack) to return *MsgpackCodec")
	}
}
