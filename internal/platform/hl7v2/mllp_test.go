package hl7v2

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testADT is a minimal ADT^A01 message used across MLLP tests.
var testADT = "MSH|^~\\&|SendApp|SendFac|RecvApp|RecvFac|20240115120000||ADT^A01|MSG001|P|2.5.1\rPID|||12345||Smith^John||19800101|M"

// ackHandler parses each frame and answers AA, or AR when parsing fails.
func ackHandler(ctx context.Context, raw []byte) []byte {
	msg, err := Parse(raw)
	if err != nil {
		return Encode(BuildACK(nil, AckReject, err.Error(), nil))
	}
	return Encode(BuildACK(msg, AckAccept, "", nil))
}

func newTestServer(t *testing.T, handler MessageHandler) *MLLPServer {
	t.Helper()
	s := NewMLLPServer("127.0.0.1:0", handler, zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

// =========== Framing Tests ===========

func TestFrameMessage(t *testing.T) {
	raw := []byte("MSH|^~\\&|A|B|||20240115||ADT^A01|C1|P|2.5.1")
	framed := FrameMessage(raw)

	if framed[0] != MLLPStartBlock {
		t.Errorf("expected first byte 0x0B, got 0x%02X", framed[0])
	}
	if framed[len(framed)-2] != MLLPEndBlock {
		t.Errorf("expected second-to-last byte 0x1C, got 0x%02X", framed[len(framed)-2])
	}
	if framed[len(framed)-1] != MLLPCarriageReturn {
		t.Errorf("expected last byte 0x0D, got 0x%02X", framed[len(framed)-1])
	}
	if !bytes.Equal(framed[1:len(framed)-2], raw) {
		t.Errorf("inner bytes do not match original")
	}
}

func TestUnframeMessage_Partial(t *testing.T) {
	data := append([]byte{MLLPStartBlock}, []byte("MSH|partial")...)
	if _, _, found := UnframeMessage(data); found {
		t.Error("expected found=false for partial frame")
	}
	if _, _, found := UnframeMessage([]byte("no start block here")); found {
		t.Error("expected found=false when no start block present")
	}
}

func TestUnframeMessage_MultipleMessages(t *testing.T) {
	msg1 := []byte("MSG_ONE")
	msg2 := []byte("MSG_TWO")
	combined := append(FrameMessage(msg1), FrameMessage(msg2)...)

	first, rest, found := UnframeMessage(combined)
	if !found || !bytes.Equal(first, msg1) {
		t.Fatalf("first message: expected %q, got %q (found=%v)", msg1, first, found)
	}
	second, rest2, found2 := UnframeMessage(rest)
	if !found2 || !bytes.Equal(second, msg2) {
		t.Fatalf("second message: expected %q, got %q (found=%v)", msg2, second, found2)
	}
	if len(rest2) != 0 {
		t.Errorf("expected empty rest after second message, got %d bytes", len(rest2))
	}
}

// =========== Server Tests ===========

func TestMLLPServer_SendsACK(t *testing.T) {
	s := newTestServer(t, ackHandler)

	conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(FrameMessage([]byte(testADT))); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ack, err := Parse(readMLLPResponse(t, conn, 5*time.Second))
	if err != nil {
		t.Fatalf("failed to parse ACK: %v", err)
	}
	msa := ack.GetSegment("MSA")
	if msa == nil {
		t.Fatal("ACK missing MSA segment")
	}
	if msa.GetField(1) != "AA" {
		t.Errorf("expected MSA-1 'AA', got %q", msa.GetField(1))
	}
	if msa.GetField(2) != "MSG001" {
		t.Errorf("expected MSA-2 'MSG001', got %q", msa.GetField(2))
	}
	if ack.SendingApp != "RecvApp" || ack.ReceivingApp != "SendApp" {
		t.Errorf("expected swapped applications, got %q -> %q", ack.SendingApp, ack.ReceivingApp)
	}
}

func TestMLLPServer_MultipleConnections(t *testing.T) {
	var mu sync.Mutex
	var received int
	s := newTestServer(t, func(ctx context.Context, raw []byte) []byte {
		mu.Lock()
		received++
		mu.Unlock()
		return ackHandler(ctx, raw)
	})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
			if err != nil {
				t.Errorf("Dial failed: %v", err)
				return
			}
			defer conn.Close()
			conn.Write(FrameMessage([]byte(testADT)))
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			buf := make([]byte, 4096)
			conn.Read(buf)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if received != 2 {
		t.Fatalf("expected 2 messages from 2 connections, got %d", received)
	}
}

func TestMLLPServer_InvalidMessage(t *testing.T) {
	s := newTestServer(t, ackHandler)

	conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.Write(FrameMessage([]byte("THIS IS NOT HL7")))
	nak, err := Parse(readMLLPResponse(t, conn, 5*time.Second))
	if err != nil {
		t.Fatalf("failed to parse reject ACK: %v", err)
	}
	if got := nak.GetSegment("MSA").GetField(1); got != "AR" {
		t.Errorf("expected MSA-1 'AR', got %q", got)
	}

	conn.Write(FrameMessage([]byte(testADT)))
	ack, err := Parse(readMLLPResponse(t, conn, 5*time.Second))
	if err != nil {
		t.Fatalf("failed to parse ACK after invalid message: %v", err)
	}
	if got := ack.GetSegment("MSA").GetField(1); got != "AA" {
		t.Errorf("expected MSA-1 'AA', got %q", got)
	}
}

// =========== ACK Tests ===========

func TestBuildACK_WithErrors(t *testing.T) {
	msg := parseTestMessage(t, testADT)
	ack := BuildACK(msg, AckError, "partial", []string{"AL1[2]-6: bad date", "OBX[0]-5: not numeric"})

	errs := ack.GetSegments("ERR")
	if len(errs) != 2 {
		t.Fatalf("expected 2 ERR segments, got %d", len(errs))
	}
	if errs[0].GetField(8) != "AL1[2]-6: bad date" {
		t.Errorf("unexpected ERR-8 %q", errs[0].GetField(8))
	}
	if ack.MessageType() != "ACK^A01" {
		t.Errorf("expected ACK^A01, got %q", ack.MessageType())
	}
	if got := ack.GetSegment("MSA").GetField(3); got != "partial" {
		t.Errorf("expected MSA-3 'partial', got %q", got)
	}
}

// =========== Helpers ===========

func parseTestMessage(t *testing.T, raw string) *Message {
	t.Helper()
	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("failed to parse test message: %v", err)
	}
	return msg
}

// readMLLPResponse reads one MLLP-framed response and returns the unframed bytes.
func readMLLPResponse(t *testing.T, conn net.Conn, timeout time.Duration) []byte {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 0, 4096)
	readBuf := make([]byte, 4096)

	for {
		n, err := conn.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
		}
		if msg, _, found := UnframeMessage(buf); found {
			return msg
		}
		if err != nil {
			t.Fatalf("error reading MLLP response: %v (buf so far: %d bytes)", err, len(buf))
		}
	}
}
