// Package protocol implements the framing used between the coilstep host
// tools and the firmware: 8-byte request descriptors in CRC-checked frames,
// answered by reply frames carrying the reply payload.
package protocol

// Version represents the coilstep firmware version
const Version = "0.1.0"

// Frame layout: [len][seq][payload...][crc hi][crc lo][sync]
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 255
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10

	// Message sequence mask
	MessageSeqMask = 0x0F

	// ReplyMax is the largest reply payload a frame can carry
	ReplyMax = MessageLengthMax - MessageLengthMin

	// MessageMax is the output scratch size (a few frames)
	MessageMax = 512
)

// NextSequence returns the sequence that follows seq (0x10-0x1F, wrapping)
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// CRC16 calculates the frame checksum (CRC-16/CCITT as used by Klipper)
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc & 0xFF)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

// AppendFrame appends a complete frame with the given sequence and payload
// to dst. The payload must not exceed ReplyMax bytes.
func AppendFrame(dst []byte, seq uint8, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, uint8(len(payload)+MessageLengthMin), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), MessageValueSync)
}
