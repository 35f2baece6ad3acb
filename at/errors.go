// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package at

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CMEError indicates a CME Error was returned by the modem.
//
// The value is the error value, in string form, which may be the numeric or
// textual, depending on the modem configuration.
type CMEError string

// CMSError indicates a CMS Error was returned by the modem.
//
// The value is the error value, in string form, which may be the numeric or
// textual, depending on the modem configuration.
type CMSError string

func (e CMEError) Error() string {
	return string("CME Error: " + e)
}

func (e CMSError) Error() string {
	return string("CMS Error: " + e)
}

// Explain returns the meaning of a numeric CME error.
func (e CMEError) Explain() string {
	return ExplainCME(string(e))
}

// Explain returns the meaning of a numeric CMS error.
func (e CMSError) Explain() string {
	return ExplainCMS(string(e))
}

// TransportError indicates the transport failed while performing a
// transaction.
//
// The transport should be reopened before further transactions.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying I/O error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

var (
	// ErrClosed indicates an operation cannot be performed as the transport
	// has been closed and could not be reopened.
	ErrClosed = errors.New("closed")

	// ErrError indicates the modem returned a generic AT ERROR in response to
	// an operation.
	ErrError = errors.New("ERROR")

	// ErrTimeout indicates the modem did not provide a usable response
	// within the transaction budget.
	ErrTimeout = errors.New("timeout")

	// ErrIndicationExists indicates there is already a indication registered
	// for a prefix.
	ErrIndicationExists = errors.New("indication exists")
)

// IsDeviceRejected returns true if the error is an explicit rejection by the
// modem, such as ERROR or a CME or CMS error.
//
// Such errors are not cured by repeating the same command.
func IsDeviceRejected(err error) bool {
	switch errors.Cause(err).(type) {
	case CMEError, CMSError:
		return true
	}
	return errors.Cause(err) == ErrError
}

// IsRetryable returns true if the error indicates the modem did not respond,
// either due to a timeout or a transport failure.
func IsRetryable(err error) bool {
	if errors.Cause(err) == ErrTimeout {
		return true
	}
	_, ok := errors.Cause(err).(*TransportError)
	return ok
}

// newError parses a line and creates an error corresponding to the content.
func newError(line string) error {
	var err error
	switch {
	case strings.HasPrefix(line, "ERROR"):
		err = ErrError
	case strings.HasPrefix(line, "+CMS ERROR:"):
		err = CMSError(strings.TrimSpace(line[11:]))
	case strings.HasPrefix(line, "+CME ERROR:"):
		err = CMEError(strings.TrimSpace(line[11:]))
	}
	return err
}

// 3GPP TS 27.007 9.2
var cmeErrors = map[int]string{
	0:   "Phone failure",
	1:   "No connection to phone",
	2:   "Phone-adapter link reserved",
	3:   "Operation not allowed",
	4:   "Operation not supported",
	5:   "PH-SIM PIN required",
	6:   "PH-FSIM PIN required",
	7:   "PH-FSIM PUK required",
	10:  "SIM not inserted",
	11:  "SIM PIN required",
	12:  "SIM PUK required",
	13:  "SIM failure",
	14:  "SIM busy",
	15:  "SIM wrong",
	16:  "Incorrect password",
	17:  "SIM PIN2 required",
	18:  "SIM PUK2 required",
	20:  "Memory full",
	21:  "Invalid index",
	22:  "Not found",
	23:  "Memory failure",
	24:  "Text string too long",
	25:  "Invalid characters in text string",
	26:  "Dial string too long",
	27:  "Invalid characters in dial string",
	30:  "No network service",
	31:  "Network timeout",
	32:  "Network not allowed - emergency calls only",
	40:  "Network personalization PIN required",
	41:  "Network personalization PUK required",
	42:  "Network subset personalization PIN required",
	43:  "Network subset personalization PUK required",
	44:  "Service provider personalization PIN required",
	45:  "Service provider personalization PUK required",
	46:  "Corporate personalization PIN required",
	47:  "Corporate personalization PUK required",
	100: "Unknown",
	103: "Illegal MS",
	106: "Illegal ME",
	107: "GPRS services not allowed",
	111: "PLMN not allowed",
	112: "Location area not allowed",
	113: "Roaming not allowed in this location area",
	132: "Service option not supported",
	133: "Requested service option not subscribed",
	134: "Service option temporarily out of order",
	148: "Unspecified GPRS error",
	149: "PDP authentication failure",
	150: "Invalid mobile class",
}

// 3GPP TS 27.005 3.2.5 and 3GPP TS 24.011 E.2
var cmsErrors = map[int]string{
	1:   "Unassigned (unallocated) number",
	8:   "Operator determined barring",
	10:  "Call barred",
	21:  "Short message transfer rejected",
	27:  "Destination out of service",
	28:  "Unidentified subscriber",
	29:  "Facility rejected",
	30:  "Unknown subscriber",
	38:  "Network out of order",
	41:  "Temporary failure",
	42:  "Congestion",
	47:  "Resources unavailable, unspecified",
	50:  "Requested facility not subscribed",
	69:  "Requested facility not implemented",
	81:  "Invalid short message transfer reference value",
	95:  "Invalid message, unspecified",
	96:  "Invalid mandatory information",
	97:  "Message type non-existent or not implemented",
	98:  "Message not compatible with short message protocol state",
	99:  "Information element non-existent or not implemented",
	111: "Protocol error, unspecified",
	127: "Interworking, unspecified",
	128: "Telematic interworking not supported",
	129: "Short message Type 0 not supported",
	130: "Cannot replace short message",
	143: "Unspecified TP-PID error",
	144: "Data coding scheme (alphabet) not supported",
	145: "Message class not supported",
	159: "Unspecified TP-DCS error",
	160: "Command cannot be actioned",
	161: "Command unsupported",
	175: "Unspecified TP-Command error",
	176: "TPDU not supported",
	192: "SC busy",
	193: "No SC subscription",
	194: "SC system failure",
	195: "Invalid SME address",
	196: "Destination SME barred",
	197: "SM Rejected-Duplicate SM",
	198: "TP-VPF not supported",
	199: "TP-VP not supported",
	208: "SIM SMS storage full",
	209: "No SMS storage capability in SIM",
	210: "Error in MS",
	211: "Memory Capacity Exceeded",
	212: "SIM Application Toolkit Busy",
	213: "SIM data download error",
	255: "Unspecified error cause",
	300: "ME failure",
	301: "SMS service of ME reserved",
	302: "Operation not allowed",
	303: "Operation not supported",
	304: "Invalid PDU mode parameter",
	305: "Invalid text mode parameter",
	310: "SIM not inserted",
	311: "SIM PIN required",
	312: "PH-SIM PIN required",
	313: "SIM failure",
	314: "SIM busy",
	315: "SIM wrong",
	316: "SIM PUK required",
	317: "SIM PIN2 required",
	318: "SIM PUK2 required",
	320: "Memory failure",
	321: "Invalid memory index",
	322: "Memory full",
	330: "SMSC address unknown",
	331: "No network service",
	332: "Network timeout",
	340: "No +CNMA acknowledgement expected",
	500: "Unknown error",
}

func explain(table map[int]string, code string) string {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return ""
	}
	return table[n]
}

// ExplainCME returns the meaning of a numeric CME error code, or an empty
// string if the code is not known.
func ExplainCME(code string) string {
	return explain(cmeErrors, code)
}

// ExplainCMS returns the meaning of a numeric CMS error code, or an empty
// string if the code is not known.
func ExplainCMS(code string) string {
	return explain(cmsErrors, code)
}

// Explain returns the meaning of the error, if it is a CME or CMS error with
// a known code.
func Explain(err error) string {
	switch e := errors.Cause(err).(type) {
	case CMEError:
		return e.Explain()
	case CMSError:
		return e.Explain()
	}
	return ""
}
