package hl7v2

import (
	"time"
)

// AckCode is the MSA-1 acknowledgment code.
type AckCode string

const (
	AckAccept AckCode = "AA"
	AckError  AckCode = "AE"
	AckReject AckCode = "AR"
)

// BuildACK creates an ACK for incoming. The ACK swaps the sending and
// receiving application/facility and echoes the control ID in MSA-2. Each
// entry in errs becomes an ERR segment. incoming may be nil when the
// original could not be parsed.
func BuildACK(incoming *Message, code AckCode, text string, errs []string) *Message {
	if incoming == nil {
		incoming = &Message{Delims: DefaultDelimiters, Version: "2.5.1"}
	}

	now := time.Now().UTC()
	ack := NewMessage(incoming.Delims)
	ack.Type = "ACK"
	ack.Trigger = incoming.Trigger
	ack.ControlID = "ACK" + now.Format("20060102150405.000")
	ack.Version = incoming.Version
	ack.Timestamp = now
	ack.SendingApp = incoming.ReceivingApp
	ack.SendingFac = incoming.ReceivingFac
	ack.ReceivingApp = incoming.SendingApp
	ack.ReceivingFac = incoming.SendingFac

	msh := ack.Segments[0]
	msh.Set(3, 0, 1, 1, ack.SendingApp)
	msh.Set(4, 0, 1, 1, ack.SendingFac)
	msh.Set(5, 0, 1, 1, ack.ReceivingApp)
	msh.Set(6, 0, 1, 1, ack.ReceivingFac)
	msh.Set(7, 0, 1, 1, now.Format("20060102150405"))
	msh.SetComponents(9, 0, "ACK", ack.Trigger, "ACK")
	msh.Set(10, 0, 1, 1, ack.ControlID)
	msh.Set(11, 0, 1, 1, "P")
	msh.Set(12, 0, 1, 1, ack.Version)

	msa := NewSegment("MSA")
	msa.Set(1, 0, 1, 1, string(code))
	msa.Set(2, 0, 1, 1, incoming.ControlID)
	if text != "" {
		msa.Set(3, 0, 1, 1, text)
	}
	ack.Segments = append(ack.Segments, msa)

	severity := "E"
	if code == AckAccept {
		severity = "W"
	}
	for _, e := range errs {
		seg := NewSegment("ERR")
		seg.Set(4, 0, 1, 1, severity)
		seg.Set(8, 0, 1, 1, e)
		ack.Segments = append(ack.Segments, seg)
	}
	return ack
}
