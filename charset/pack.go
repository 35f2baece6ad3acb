// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package charset

// pad is the septet appended to disambiguate a packed stream that would
// otherwise end with 7 spare bits.
const pad = '\r'

// PackBits packs septets into octets, least significant bit first.
//
// fillBits zero bits are inserted before the first septet, as required when
// a user data header precedes packed text.
func PackBits(septets []byte, fillBits int) []byte {
	bits := fillBits + len(septets)*7
	octets := make([]byte, (bits+7)/8)
	pos := fillBits
	for _, s := range septets {
		s &= 0x7f
		idx := pos / 8
		shift := uint(pos % 8)
		octets[idx] |= s << shift
		if shift > 1 {
			octets[idx+1] |= s >> (8 - shift)
		}
		pos += 7
	}
	return octets
}

// UnpackBits extracts n septets from packed octets, skipping fillBits
// leading bits.
//
// If the octets are too short the septets that are available are returned.
func UnpackBits(octets []byte, n int, fillBits int) []byte {
	if avail := (len(octets)*8 - fillBits) / 7; n > avail {
		n = avail
	}
	if n < 0 {
		n = 0
	}
	septets := make([]byte, n)
	pos := fillBits
	for i := 0; i < n; i++ {
		idx := pos / 8
		shift := uint(pos % 8)
		s := octets[idx] >> shift
		if shift > 1 {
			s |= octets[idx+1] << (8 - shift)
		}
		septets[i] = s & 0x7f
		pos += 7
	}
	return septets
}

// Pack packs septets into octets, appending a CR padding septet when the
// receiver could not otherwise tell the length.
//
// That is the case when the last octet would carry 7 unused bits, or when
// the septets fill the octets exactly and the last septet is itself a CR.
func Pack(septets []byte) []byte {
	l := len(septets)
	if l%8 == 7 || (l > 0 && l%8 == 0 && septets[l-1] == pad) {
		septets = append(septets[:l:l], pad)
	}
	return PackBits(septets, 0)
}

// Unpack extracts n septets from octets packed by Pack.
func Unpack(octets []byte, n int) []byte {
	return UnpackBits(octets, n, 0)
}

// UnpackPadded extracts all the septets from octets packed by Pack,
// inferring the count from the octet length and removing any padding.
func UnpackPadded(octets []byte) []byte {
	n := len(octets) * 8 / 7
	septets := UnpackBits(octets, n, 0)
	l := len(septets)
	if (l%8 == 0 && l > 0 && septets[l-1] == pad) ||
		(l%8 == 1 && l > 1 && septets[l-1] == pad && septets[l-2] == pad) {
		septets = septets[:l-1]
	}
	return septets
}
