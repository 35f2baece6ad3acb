// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package pdu

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Information element identifiers used for concatenation.
const (
	IEIConcat8  = 0x00
	IEIConcat16 = 0x08
)

// InformationElement is a single element of a user data header.
type InformationElement struct {
	ID   byte
	Data []byte
}

// Description returns the 3GPP TS 23.040 name of the element.
func (ie InformationElement) Description() string {
	return DescribeIEI(ie.ID)
}

var ieiDescriptions = map[byte]string{
	0x00: "Concatenated short messages, 8-bit reference number",
	0x01: "Special SMS Message Indication",
	0x02: "Reserved",
	0x04: "Application port addressing scheme, 8 bit address",
	0x05: "Application port addressing scheme, 16 bit address",
	0x06: "SMSC Control Parameters",
	0x07: "UDH Source Indicator",
	0x08: "Concatenated short message, 16-bit reference number",
	0x09: "Wireless Control Message Protocol",
	0x0a: "Text Formatting",
	0x0b: "Predefined Sound",
	0x0c: "User Defined Sound (iMelody max 128 bytes)",
	0x0d: "Predefined Animation",
	0x0e: "Large Animation (16*16 times 4 = 32*4 =128 bytes)",
	0x0f: "Small Animation (8*8 times 4 = 8*4 =32 bytes)",
	0x10: "Large Picture (32*32 = 128 bytes)",
	0x11: "Small Picture (16*16 = 32 bytes)",
	0x12: "Variable Picture",
	0x13: "User prompt indicator",
	0x14: "Extended Object",
	0x15: "Reused Extended Object",
	0x16: "Compression Control",
	0x17: "Object Distribution Indicator",
	0x18: "Standard WVG object",
	0x19: "Character Size WVG object",
	0x1a: "Extended Object Data Request Command",
	0x20: "RFC 822 E-Mail Header",
	0x21: "Hyperlink format element",
	0x22: "Reply Address Element",
	0x23: "Enhanced Voice Mail Information",
}

// DescribeIEI returns the name of an information element identifier.
func DescribeIEI(id byte) string {
	if d, ok := ieiDescriptions[id]; ok {
		return d
	}
	switch {
	case id >= 0x1b && id <= 0x1f:
		return "Reserved for future EMS features"
	case id >= 0x70 && id <= 0x7f:
		return "(U)SIM Toolkit Security Headers"
	case id >= 0x80 && id <= 0x9f:
		return "SME to SME specific use"
	case id >= 0xc0 && id <= 0xdf:
		return "SC specific use"
	case id == 0x03:
		return "unknown"
	}
	return "Reserved for future use"
}

// ParseUDH splits a user data header, including its leading length octet,
// into its information elements.
//
// The declared length must match the elements exactly.
func ParseUDH(udh []byte) ([]InformationElement, error) {
	if len(udh) == 0 {
		return nil, errors.Wrap(ErrInvalidUDH, "empty")
	}
	l := int(udh[0])
	if l+1 > len(udh) {
		return nil, errors.Wrapf(ErrInvalidUDH, "length %d exceeds data %d", l, len(udh)-1)
	}
	if l+1 < len(udh) {
		return nil, errors.Wrapf(ErrInvalidUDH, "length %d less than data %d", l, len(udh)-1)
	}
	var ies []InformationElement
	for idx := 1; idx < l+1; {
		if idx+2 > l+1 {
			return nil, errors.Wrapf(ErrInvalidUDH, "truncated element at %d", idx)
		}
		id := udh[idx]
		il := int(udh[idx+1])
		end := idx + 2 + il
		if end > l+1 {
			return nil, errors.Wrapf(ErrInvalidUDH, "element 0x%02X length %d overruns header", id, il)
		}
		ies = append(ies, InformationElement{ID: id, Data: append([]byte(nil), udh[idx+2:end]...)})
		idx = end
	}
	return ies, nil
}

// EncodeUDH builds a user data header, including the length octet, from the
// elements.
func EncodeUDH(ies []InformationElement) ([]byte, error) {
	udh := []byte{0}
	for _, ie := range ies {
		if len(ie.Data) > 255 {
			return nil, ErrTooLong
		}
		udh = append(udh, ie.ID, byte(len(ie.Data)))
		udh = append(udh, ie.Data...)
	}
	if len(udh)-1 > 255 {
		return nil, ErrTooLong
	}
	udh[0] = byte(len(udh) - 1)
	return udh, nil
}

// ExplainUDH describes a user data header, e.g.
// "Length=6, [00]Concatenated short messages, 8-bit reference number".
func ExplainUDH(udh []byte) (string, error) {
	ies, err := ParseUDH(udh)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Length=%d", len(udh))
	for _, ie := range ies {
		fmt.Fprintf(&sb, ", [%02X]%s", ie.ID, ie.Description())
	}
	return sb.String(), nil
}

// ExtractConcatenation finds the concatenation element in the header and
// returns its details, and the header with the element removed.
//
// The remaining header is nil if no other elements remain. If there is no
// concatenation element the header is returned unaltered with a nil
// Concatenation.
func ExtractConcatenation(udh []byte) (*Concatenation, []byte, error) {
	ies, err := ParseUDH(udh)
	if err != nil {
		return nil, udh, err
	}
	for i, ie := range ies {
		var c *Concatenation
		switch {
		case ie.ID == IEIConcat8 && len(ie.Data) == 3:
			c = &Concatenation{
				Reference: int(ie.Data[0]),
				Total:     int(ie.Data[1]),
				Part:      int(ie.Data[2]),
			}
		case ie.ID == IEIConcat16 && len(ie.Data) == 4:
			c = &Concatenation{
				Reference: int(ie.Data[0])<<8 | int(ie.Data[1]),
				Wide:      true,
				Total:     int(ie.Data[2]),
				Part:      int(ie.Data[3]),
			}
		default:
			continue
		}
		rest := append(ies[:i:i], ies[i+1:]...)
		if len(rest) == 0 {
			return c, nil, nil
		}
		remaining, err := EncodeUDH(rest)
		return c, remaining, err
	}
	return nil, udh, nil
}

// ConcatenationUDH returns the header for one part of a concatenated message
// using an 8-bit reference.
func ConcatenationUDH(reference byte, total, part int) []byte {
	return []byte{0x05, IEIConcat8, 0x03, reference, byte(total), byte(part)}
}
