package core

// Fixed-width ASCII decimal encoding for reply payloads.
// No leading-zero suppression: replies always carry every digit.

// EncodeFixedWidth3 encodes v as exactly three ASCII digits ("007", "150").
func EncodeFixedWidth3(v uint8) [3]byte {
	hundreds := v / 100
	v -= hundreds * 100
	tens := v / 10
	v -= tens * 10

	return [3]byte{'0' + hundreds, '0' + tens, '0' + v}
}

// EncodeFixedWidth5 encodes v as exactly five ASCII digits ("00010", "65535").
// Digits 4..1 are found by repeated subtraction of PowerOfTen(i); whatever
// remains is the units digit.
func EncodeFixedWidth5(v uint16) [5]byte {
	var out [5]byte
	rest := uint32(v)

	for i := 4; i >= 1; i-- {
		p := PowerOfTen(i)
		digit := byte(0)
		for rest >= p {
			rest -= p
			digit++
		}
		out[4-i] = '0' + digit
	}
	out[4] = '0' + byte(rest)

	return out
}

// PowerOfTen returns 10^i for i in [0,9].
func PowerOfTen(i int) uint32 {
	p := uint32(1)
	for ; i > 0; i-- {
		p *= 10
	}
	return p
}
