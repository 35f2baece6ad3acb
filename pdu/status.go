// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package pdu

// statusPhrases explains the TP-ST values defined by GSM 03.40 9.2.3.15.
var statusPhrases = map[byte]string{
	// transaction completed
	0: "Ok,short message received by the SME",
	1: "Ok,short message forwarded by the SC to the SME but the SC is unable to confirm delivery",
	2: "Ok,short message replaced by the SC",

	// temporary error, SC still trying to transfer SM
	32: "Still trying,congestion",
	33: "Still trying,SME busy",
	34: "Still trying,no response sendr SME",
	35: "Still trying,service rejected",
	36: "Still trying,quality of service not available",
	37: "Still trying,error in SME",

	// permanent error, SC is not making any more transfer attempts
	64: "Error,remote procedure error",
	65: "Error,incompatible destination",
	66: "Error,connection rejected by SME",
	67: "Error,not obtainable",
	68: "Error,quality of service not available",
	69: "Error,no interworking available",
	70: "Error,SM validity period expired",
	71: "Error,SM deleted by originating SME",
	72: "Error,SM deleted by SC administration",
	73: "Error,SM does not exist",

	// temporary error, SC is not making any more transfer attempts
	96:  "Error,congestion",
	97:  "Error,SME busy",
	98:  "Error,no response sendr SME",
	99:  "Error,service rejected",
	100: "Error,quality of service not available",
	101: "Error,error in SME",
}

// ExplainStatus returns the phrase for a status report status.
func ExplainStatus(status byte) string {
	if p, ok := statusPhrases[status]; ok {
		return p
	}
	switch {
	case status >= 48 && status <= 63:
		return "Temporary error, SC specific, unknown"
	case (status >= 80 && status <= 95) || (status >= 112 && status <= 127):
		return "Permanent error, SC specific, unknown"
	}
	return "unknown"
}
