// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package gsm

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/warthog618/smsgw/at"
	"github.com/warthog618/smsgw/charset"
	"github.com/warthog618/smsgw/config"
	"github.com/warthog618/smsgw/info"
	"github.com/warthog618/smsgw/pdu"
	"github.com/warthog618/smsgw/spool"
)

// SendKind is the result of sending a message.
type SendKind int

const (
	// Sent indicates all parts of the message were accepted by the network.
	Sent SendKind = iota
	// Failed indicates the message cannot be sent, or was only partially
	// sent, and should not be retried.
	Failed
	// RetryLater indicates nothing was sent due to a condition that may
	// clear, such as the modem not responding or network congestion.
	RetryLater
)

func (k SendKind) String() string {
	switch k {
	case Sent:
		return "sent"
	case Failed:
		return "failed"
	}
	return "retry later"
}

// SendOutcome is the result of Send.
type SendOutcome struct {
	Kind SendKind
	// MessageIDs are the message references of the parts sent, in part
	// order.
	MessageIDs []int
	// Reason is a short description of why the message was not sent.
	Reason string
	Err    error
}

// Message record fields.
const (
	FieldTo        = "To"
	FieldToTOA     = "To_TOA"
	FieldAlphabet  = "Alphabet"
	FieldFlash     = "Flash"
	FieldReport    = "Report"
	FieldValidity  = "Validity"
	FieldUDH       = "UDH"
	FieldReplace   = "Replace"
	FieldSystem    = "System_message"
	FieldSMSC      = "SMSC"
	FieldAutosplit = "Autosplit"
	FieldHex       = "Hex"
)

// CMS error codes indicating a network condition that may clear.
var temporaryCMS = map[int]bool{
	38:  true, // network out of order
	41:  true, // temporary failure
	42:  true, // congestion
	47:  true, // resources unavailable
	331: true, // no network service
	332: true, // network timeout
}

// Send sends the message described by the record.
//
// Messages too long for a single PDU are split into a concatenated message,
// unless disabled by the Autosplit field or the device config.
func (g *GSM) Send(ctx context.Context, r *spool.Record) SendOutcome {
	pdus, err := g.encode(r)
	if err != nil {
		return SendOutcome{Kind: Failed, Reason: err.Error(), Err: err}
	}
	log := g.log.WithField("to", r.Get(FieldTo))
	var ids []int
	for i, p := range pdus {
		l := log
		if len(pdus) > 1 {
			l = log.WithField("part", fmt.Sprintf("%d/%d", i+1, len(pdus)))
		}
		id, err := g.sendPDU(ctx, p)
		if err == nil {
			l.WithField("message_id", id).Info("SMS sent")
			ids = append(ids, id)
			continue
		}
		reason := sendFailure(err)
		l.WithError(err).Warn("sending SMS failed")
		if i == 0 && (temporary(err) || ctx.Err() != nil) {
			return SendOutcome{Kind: RetryLater, Reason: reason, Err: err}
		}
		if i > 0 {
			reason = fmt.Sprintf("part %d of %d: %s", i+1, len(pdus), reason)
		}
		return SendOutcome{Kind: Failed, MessageIDs: ids, Reason: reason, Err: err}
	}
	return SendOutcome{Kind: Sent, MessageIDs: ids}
}

// sendPDU sends a single PDU and returns its message reference.
func (g *GSM) sendPDU(ctx context.Context, e *pdu.Encoded) (int, error) {
	i, err := g.SMSCommand(ctx, fmt.Sprintf("+CMGS=%d", e.TPDULength), e.PDU)
	if err != nil {
		return 0, err
	}
	for _, l := range i {
		if info.HasPrefix(l, "+CMGS") {
			f := info.Fields(l, "+CMGS")
			return info.Int(f[0], 0), nil
		}
	}
	// accepted, but the modem does not report the reference
	return 0, nil
}

// temporary returns true if the error may clear if the message is sent
// again later.
func temporary(err error) bool {
	if at.IsRetryable(err) {
		return true
	}
	if e, ok := errors.Cause(err).(at.CMSError); ok {
		return temporaryCMS[info.Int(string(e), 0)]
	}
	return false
}

// sendFailure returns the stable reason recorded for a failed send.
func sendFailure(err error) string {
	switch errors.Cause(err) {
	case at.ErrTimeout:
		return "The modem did not answer"
	case at.ErrError:
		return "The modem answered ERROR"
	}
	if x := at.Explain(err); x != "" {
		return fmt.Sprintf("%s (%s)", errors.Cause(err).Error(), x)
	}
	return errors.Cause(err).Error()
}

// encode converts the record into the PDUs to be sent.
func (g *GSM) encode(r *spool.Record) ([]*pdu.Encoded, error) {
	s, err := g.submit(r)
	if err != nil {
		return nil, err
	}
	parts := []string{s.Text}
	if s.Alphabet != pdu.Binary {
		if parts, err = pdu.Split(s.Text, s.Alphabet); err != nil {
			return nil, err
		}
	}
	if len(parts) > 1 {
		switch {
		case !r.Bool(FieldAutosplit, g.cfg.Autosplit):
			return nil, errors.Wrap(pdu.ErrTooLong, "autosplit disabled")
		case len(s.UDH) > 0:
			return nil, errors.Wrap(pdu.ErrTooLong, "cannot split a message with a UDH")
		}
		g.ref++
	}
	var pdus []*pdu.Encoded
	for i, text := range parts {
		ps := s
		ps.Text = text
		if len(parts) > 1 {
			ps.UDH = pdu.ConcatenationUDH(g.ref, len(parts), i+1)
		}
		e, err := pdu.EncodeSubmit(ps, g.cfg.Numbering)
		if err != nil {
			return nil, err
		}
		for _, d := range e.Diagnostics {
			g.log.WithField("to", s.To).Warn(d.String())
		}
		pdus = append(pdus, e)
	}
	return pdus, nil
}

// submit builds the Submit described by the record, using the device
// config for fields the record does not provide.
func (g *GSM) submit(r *spool.Record) (pdu.Submit, error) {
	s := pdu.Submit{
		To:         strings.TrimSpace(r.Get(FieldTo)),
		NumberType: pdu.ParseNumberType(r.Get(FieldToTOA)),
		Flash:      r.Bool(FieldFlash, false),
		Report:     r.Bool(FieldReport, g.cfg.Report),
		SMSC:       g.cfg.SMSC,
		Mode:       g.cfg.PDUMode,
	}
	if s.To == "" {
		return s, errors.New("no destination")
	}
	if r.Has(FieldSMSC) {
		s.SMSC = r.Get(FieldSMSC)
	}
	s.SMSC = strings.TrimPrefix(s.SMSC, "+")
	validity := g.cfg.ValidityCode
	if r.Has(FieldValidity) {
		v, err := pdu.ParseValidity(r.Get(FieldValidity))
		if err != nil {
			return s, err
		}
		validity = v
	}
	s.Validity = &validity
	if r.Has(FieldReplace) {
		s.Replace = info.Int(r.Get(FieldReplace), 0)
		if s.Replace < 0 || s.Replace > 7 {
			return s, errors.Errorf("invalid replace '%s'", r.Get(FieldReplace))
		}
	}
	switch strings.ToLower(r.Get(FieldSystem)) {
	case "", "no", "false", "0":
	case "2", "tosim":
		s.System = 2
	default:
		s.System = 1
	}
	if r.Has(FieldUDH) {
		udh, err := hex.DecodeString(strings.Join(strings.Fields(r.Get(FieldUDH)), ""))
		if err != nil {
			return s, errors.Wrap(pdu.ErrInvalidUDH, err.Error())
		}
		s.UDH = udh
	}
	body := r.Body
	name := strings.ToLower(r.Get(FieldAlphabet))
	a, err := pdu.ParseAlphabet(name)
	if err != nil {
		return s, err
	}
	switch {
	case a == pdu.Binary:
		s.Alphabet = a
		s.Data = body
		if r.Bool(FieldHex, false) {
			if s.Data, err = hex.DecodeString(strings.Join(strings.Fields(string(body)), "")); err != nil {
				return s, errors.Wrap(err, "hex body")
			}
		}
		return s, nil
	case name == "iso" || name == "latin" || name == "ansi":
		s.Text = charset.FromISO(body)
	default:
		s.Text = string(body)
	}
	s.Text = strings.TrimRight(s.Text, " \t\r\n")
	switch {
	case name != "":
		s.Alphabet = a
	case g.cfg.Alphabet == config.AlphabetUCS2:
		s.Alphabet = pdu.UCS2
	case g.cfg.Alphabet == config.AlphabetAuto && !charset.IsGSM(s.Text):
		s.Alphabet = pdu.UCS2
	default:
		s.Alphabet = pdu.GSM7
	}
	return s, nil
}

// logOutcome logs the outcome of a send at the appropriate level.
func logOutcome(l logrus.FieldLogger, o SendOutcome) {
	switch o.Kind {
	case Sent:
		l.WithField("message_ids", o.MessageIDs).Info("message sent")
	case RetryLater:
		l.WithField("reason", o.Reason).Warn("message deferred")
	default:
		l.WithField("reason", o.Reason).Error("message failed")
	}
}
