// Package frame implements the binary wire framing for relaygo.
//
// It solves TCP's sticky packet problem with a fixed-size 13-byte header
// followed by a variable-length body. The receiver reads the header first to
// determine the body length, then reads exactly that many bytes.
//
// Frame format:
//
//	0         4  5         13
//	┌─────────┬──┬─────────┬───────────────┐
//	│ bodyLen │rt│   reqID  │    body ...    │
//	│ uint32  │  │ uint64   │ bodyLen bytes  │
//	└─────────┴──┴─────────┴───────────────┘
//
// All integers are big-endian. There is no magic number or version byte —
// this framework trades that away for a minimal, spec-exact header.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the fixed header length: 4 (bodyLen) + 1 (reqType) + 8 (reqID).
const HeaderSize = 13

// ReqKind distinguishes request, response, heartbeat, and pub/sub frames.
// Values are stable wire identifiers — 3 is intentionally unused.
type ReqKind byte

const (
	RpcRequest       ReqKind = 0
	RpcResponse      ReqKind = 1
	Heartbeat        ReqKind = 2
	SubscribeRequest ReqKind = 4
	PublishRequest   ReqKind = 5
)

func (k ReqKind) String() string {
	switch k {
	case RpcRequest:
		return "RpcRequest"
	case RpcResponse:
		return "RpcResponse"
	case Heartbeat:
		return "Heartbeat"
	case SubscribeRequest:
		return "SubscribeRequest"
	case PublishRequest:
		return "PublishRequest"
	default:
		return fmt.Sprintf("ReqKind(%d)", byte(k))
	}
}

// Header is the fixed 13-byte frame header.
type Header struct {
	BodyLen uint32
	ReqType ReqKind
	ReqID   uint64
}

// Frame is a complete decoded message: header plus body.
type Frame struct {
	Header Header
	Body   []byte
}

// Encode writes a complete frame (header + body) to w.
// The caller must hold a write lock if multiple goroutines share w,
// otherwise frames from different requests will interleave and corrupt the
// stream.
func Encode(w io.Writer, h Header, body []byte) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(body)))
	buf[4] = byte(h.ReqType)
	binary.BigEndian.PutUint64(buf[5:13], h.ReqID)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads exactly one complete frame (header then body) from r.
// Uses io.ReadFull to guarantee exact byte counts — a short read is always
// treated as fatal for the connection (ProtocolError), per the reading
// discipline.
func Decode(r io.Reader) (*Frame, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, err
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[0:4])
	reqType := ReqKind(headerBuf[4])
	reqID := binary.BigEndian.Uint64(headerBuf[5:13])

	if !validReqType(reqType) {
		return nil, fmt.Errorf("frame: unsupported req_type: %d", reqType)
	}

	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
	}

	return &Frame{
		Header: Header{BodyLen: bodyLen, ReqType: reqType, ReqID: reqID},
		Body:   body,
	}, nil
}

func validReqType(k ReqKind) bool {
	switch k {
	case RpcRequest, RpcResponse, Heartbeat, SubscribeRequest, PublishRequest:
		return true
	default:
		return false
	}
}
