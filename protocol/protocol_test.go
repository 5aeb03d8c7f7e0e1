// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package protocol_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tagmesh/tagmesh/lib/capability"
	"github.com/tagmesh/tagmesh/lib/clock"
	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/lib/vclock"
	"github.com/tagmesh/tagmesh/protocol"
)

func TestFrameRoundTrip(t *testing.T) {
	messages := []protocol.Message{
		{Type: protocol.MessageTypeOffer, Payload: []byte("offer payload")},
		{Type: protocol.MessageTypeDelta, Payload: nil},
		{Type: protocol.MessageTypeDeltaRequest, Payload: []byte{0x00, 0xff}},
	}

	var buffer bytes.Buffer
	for _, message := range messages {
		if err := protocol.WriteMessage(&buffer, message); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}
	for i, want := range messages {
		got, err := protocol.ReadMessage(&buffer)
		if err != nil {
			t.Fatalf("ReadMessage %d: %v", i, err)
		}
		if got.Type != want.Type {
			t.Errorf("message %d type = 0x%02x, want 0x%02x", i, got.Type, want.Type)
		}
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("message %d payload = %q, want %q", i, got.Payload, want.Payload)
		}
	}
	if _, err := protocol.ReadMessage(&buffer); err != io.EOF {
		t.Errorf("reading drained stream = %v, want io.EOF", err)
	}
}

func TestWriteRejectsOversizedPayload(t *testing.T) {
	message := protocol.Message{
		Type:    protocol.MessageTypeDelta,
		Payload: make([]byte, protocol.MaxPayloadLength+1),
	}
	err := protocol.WriteMessage(io.Discard, message)
	if !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Errorf("WriteMessage = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadRejectsOversizedFrame(t *testing.T) {
	// A header claiming a payload past the cap must be rejected
	// before any allocation, without reading the payload.
	var header [5]byte
	header[0] = protocol.MessageTypeDelta
	binary.BigEndian.PutUint32(header[1:5], protocol.MaxPayloadLength+1)

	_, err := protocol.ReadMessage(bytes.NewReader(header[:]))
	if !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Errorf("ReadMessage = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadRejectsTruncatedFrame(t *testing.T) {
	var buffer bytes.Buffer
	message := protocol.Message{Type: protocol.MessageTypeOffer, Payload: []byte("full payload")}
	if err := protocol.WriteMessage(&buffer, message); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	framed := buffer.Bytes()

	for _, cut := range []int{1, 3, len(framed) - 4} {
		_, err := protocol.ReadMessage(bytes.NewReader(framed[:cut]))
		if err == nil || err == io.EOF {
			t.Errorf("ReadMessage of %d/%d bytes = %v, want truncation error", cut, len(framed), err)
		}
	}
}

func TestOfferRoundTrip(t *testing.T) {
	offer := protocol.CapabilityOffer{
		Protocol: protocol.Version,
		Peer:     "laptop",
		Capabilities: []capability.Descriptor{
			{Namespace: "core", Version: capability.Version{Major: 1}},
			{Namespace: "photo", Version: capability.Version{Major: 2, Minor: 1}, Required: true},
		},
	}
	message, err := protocol.EncodeOffer(offer)
	if err != nil {
		t.Fatalf("EncodeOffer: %v", err)
	}
	decoded, err := protocol.DecodeOffer(message)
	if err != nil {
		t.Fatalf("DecodeOffer: %v", err)
	}
	if decoded.Protocol != offer.Protocol || decoded.Peer != offer.Peer {
		t.Errorf("decoded %+v, want %+v", decoded, offer)
	}
	if len(decoded.Capabilities) != 2 || decoded.Capabilities[1] != offer.Capabilities[1] {
		t.Errorf("capabilities = %+v, want %+v", decoded.Capabilities, offer.Capabilities)
	}
}

func TestDecodeRejectsWrongMessageType(t *testing.T) {
	message, err := protocol.EncodeReply(protocol.CapabilityReply{Peer: "serverA"})
	if err != nil {
		t.Fatalf("EncodeReply: %v", err)
	}
	if _, err := protocol.DecodeOffer(message); err == nil {
		t.Error("DecodeOffer of a reply frame succeeded, want error")
	}
}

func TestDeltaRequestRoundTrip(t *testing.T) {
	nodeA, err := tag.NewNodeID()
	if err != nil {
		t.Fatalf("NewNodeID: %v", err)
	}
	nodeB, err := tag.NewNodeID()
	if err != nil {
		t.Fatalf("NewNodeID: %v", err)
	}

	// Two nodes with clocks from the same origin: the request must
	// keep their components apart.
	since := vclock.NewFrontier()
	since.Observe(nodeA, "laptop", 7)
	since.Observe(nodeA, "serverA", 3)
	since.Observe(nodeB, "laptop", 2)

	message, err := protocol.EncodeDeltaRequest(protocol.NewDeltaRequest(since))
	if err != nil {
		t.Fatalf("EncodeDeltaRequest: %v", err)
	}
	decoded, err := protocol.DecodeDeltaRequest(message)
	if err != nil {
		t.Fatalf("DecodeDeltaRequest: %v", err)
	}
	if got := decoded.Frontier(); !got.Equal(since) {
		t.Errorf("frontier = %v, want %v", got, since)
	}
}

func TestDeltaRequestEmptyFrontier(t *testing.T) {
	message, err := protocol.EncodeDeltaRequest(protocol.NewDeltaRequest(nil))
	if err != nil {
		t.Fatalf("EncodeDeltaRequest: %v", err)
	}
	decoded, err := protocol.DecodeDeltaRequest(message)
	if err != nil {
		t.Fatalf("DecodeDeltaRequest: %v", err)
	}
	if len(decoded.Since) != 0 {
		t.Errorf("Since = %v, want empty", decoded.Since)
	}
}

func TestDeltaMessageRoundTrip(t *testing.T) {
	id, err := tag.NewNodeID()
	if err != nil {
		t.Fatalf("NewNodeID: %v", err)
	}
	original := tag.Delta{
		Node:   id,
		Origin: "laptop",
		Clock:  4,
		Inserted: []tag.Tag{
			{Namespace: "core", Key: "name", Origin: "laptop", Value: tag.StringValue("sunset.jpg")},
			{Namespace: "music", Key: "bpm", Origin: "laptop", Value: tag.NumberValue(120)},
			{Namespace: "photo", Key: "exif", Origin: "laptop", Value: tag.MappingValue(map[string]tag.Value{
				"iso":   tag.NumberValue(200),
				"flash": tag.BoolValue(false),
			})},
		},
		Removed: []tag.TagRef{{Namespace: "core", Key: "draft"}},
	}

	message, err := protocol.EncodeDelta(protocol.NewDeltaMessage(original))
	if err != nil {
		t.Fatalf("EncodeDelta: %v", err)
	}
	wire, err := protocol.DecodeDelta(message)
	if err != nil {
		t.Fatalf("DecodeDelta: %v", err)
	}
	decoded, err := wire.Delta()
	if err != nil {
		t.Fatalf("Delta: %v", err)
	}

	if decoded.Node != original.Node || decoded.Origin != original.Origin || decoded.Clock != original.Clock {
		t.Errorf("delta header = %v/%s/%d, want %v/%s/%d",
			decoded.Node, decoded.Origin, decoded.Clock, original.Node, original.Origin, original.Clock)
	}
	if len(decoded.Inserted) != len(original.Inserted) {
		t.Fatalf("inserted %d tags, want %d", len(decoded.Inserted), len(original.Inserted))
	}
	for i, want := range original.Inserted {
		got := decoded.Inserted[i]
		if got.Namespace != want.Namespace || got.Key != want.Key || !got.Value.Equal(want.Value) {
			t.Errorf("inserted[%d] = %s, want %s", i, got, want)
		}
	}
	if len(decoded.Removed) != 1 || decoded.Removed[0] != original.Removed[0] {
		t.Errorf("removed = %v, want %v", decoded.Removed, original.Removed)
	}
}

func TestDeltaRejectsInvalidWireShape(t *testing.T) {
	id, err := tag.NewNodeID()
	if err != nil {
		t.Fatalf("NewNodeID: %v", err)
	}
	tests := []struct {
		name    string
		message protocol.DeltaMessage
		want    string
	}{
		{
			name: "null value",
			message: protocol.DeltaMessage{
				Node: id, Origin: "laptop", Clock: 1,
				Inserted: []protocol.WireTag{{Namespace: "core", Key: "name", Value: nil}},
			},
			want: "core:name",
		},
		{
			name: "zero clock",
			message: protocol.DeltaMessage{
				Node: id, Origin: "laptop",
				Inserted: []protocol.WireTag{{Namespace: "core", Key: "name", Value: "x"}},
			},
			want: "clock",
		},
		{
			name: "missing origin",
			message: protocol.DeltaMessage{
				Node: id, Clock: 1,
				Inserted: []protocol.WireTag{{Namespace: "core", Key: "name", Value: "x"}},
			},
			want: "origin",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := test.message.Delta()
			if err == nil {
				t.Fatal("Delta() succeeded, want error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not mention %q", err, test.want)
			}
		})
	}
}

// TestReceiverDeliversAfterAbandonedWait checks the receiver's core
// guarantee: a Next call abandoned on timeout does not lose the
// in-flight message; it arrives at the following Next call.
func TestReceiverDeliversAfterAbandonedWait(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	receiver := protocol.NewReceiver(serverConn)
	defer receiver.Close()

	fake := clock.Fake(time.Unix(1000, 0))
	waitResult := make(chan error, 1)
	go func() {
		_, err := receiver.Next(fake, time.Second)
		waitResult <- err
	}()
	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	if err := <-waitResult; !errors.Is(err, protocol.ErrNegotiationTimeout) {
		t.Fatalf("Next = %v, want ErrNegotiationTimeout", err)
	}

	// The message written after the timeout reaches the next call.
	go func() {
		protocol.WriteMessage(clientConn, protocol.Message{Type: protocol.MessageTypeDelta, Payload: []byte("late")})
	}()
	message, err := receiver.Next(clock.Real(), 0)
	if err != nil {
		t.Fatalf("Next after timeout: %v", err)
	}
	if string(message.Payload) != "late" {
		t.Errorf("payload = %q, want %q", message.Payload, "late")
	}
}

func TestReceiverSurfacesStreamEnd(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	receiver := protocol.NewReceiver(serverConn)
	defer receiver.Close()
	defer serverConn.Close()

	clientConn.Close()
	if _, err := receiver.Next(clock.Real(), 0); err == nil {
		t.Error("Next on closed stream succeeded, want error")
	}
}
