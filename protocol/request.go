package protocol

import "errors"

// RequestSize is the size of a request descriptor
const RequestSize = 8

// Request descriptor field offsets
const (
	RequestPosType   = 0
	RequestPosCode   = 1
	RequestPosValue  = 2 // 2 bytes, big-endian
	RequestPosIndex  = 4 // 2 bytes, big-endian
	RequestPosLength = 6 // 2 bytes, big-endian
)

// ErrRequestLength is returned when a descriptor is not exactly RequestSize bytes
var ErrRequestLength = errors.New("request descriptor must be 8 bytes")

// Request is a decoded 8-byte request descriptor, laid out like a USB
// control SETUP packet. Code selects the command; Value carries the
// embedded parameter of parameterized commands.
type Request struct {
	Type   uint8
	Code   uint8
	Value  uint16
	Index  uint16
	Length uint16
}

// ParseRequest decodes a request descriptor
func ParseRequest(data []byte) (Request, error) {
	if len(data) != RequestSize {
		return Request{}, ErrRequestLength
	}
	return Request{
		Type:   data[RequestPosType],
		Code:   data[RequestPosCode],
		Value:  be16(data[RequestPosValue:]),
		Index:  be16(data[RequestPosIndex:]),
		Length: be16(data[RequestPosLength:]),
	}, nil
}

// Bytes encodes the request descriptor
func (r Request) Bytes() [RequestSize]byte {
	var out [RequestSize]byte
	out[RequestPosType] = r.Type
	out[RequestPosCode] = r.Code
	putBE16(out[RequestPosValue:], r.Value)
	putBE16(out[RequestPosIndex:], r.Index)
	putBE16(out[RequestPosLength:], r.Length)
	return out
}

// NewRequest builds a vendor request for a command code with an optional
// parameter value
func NewRequest(code uint8, value uint16) Request {
	return Request{Type: RequestTypeVendorIn, Code: code, Value: value, Length: ReplyMax}
}

// RequestTypeVendorIn marks a device-to-host vendor request
const RequestTypeVendorIn = 0xC0

func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func putBE16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
