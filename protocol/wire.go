// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge reports a frame whose payload exceeds
// MaxPayloadLength, on either the write or the read side.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum payload length")

// Message type constants for the peer protocol wire format.
const (
	// MessageTypeOffer carries a CapabilityOffer. Initiator to
	// responder, exactly once, first message on the wire.
	MessageTypeOffer byte = 0x01

	// MessageTypeReply carries a CapabilityReply. Responder to
	// initiator, exactly once, answering the offer.
	MessageTypeReply byte = 0x02

	// MessageTypeDeltaRequest carries a DeltaRequest asking the peer
	// to replay every delta after the Since vector. Either direction,
	// any time after the handshake.
	MessageTypeDeltaRequest byte = 0x03

	// MessageTypeDelta carries one DeltaMessage. Either direction,
	// any time after the handshake.
	MessageTypeDelta byte = 0x04
)

// messageHeaderLength is the fixed size of a message header: 1 byte
// type + 4 bytes payload length.
const messageHeaderLength = 5

// MaxPayloadLength is the maximum allowed payload size. Deltas are
// small in normal operation; 16 MB leaves room for bulk catch-up
// batches without letting a broken peer demand unbounded memory.
const MaxPayloadLength = 16 * 1024 * 1024

// Message is a single framed protocol message.
type Message struct {
	Type    byte
	Payload []byte
}

// WriteMessage writes a framed message to w. The frame format is:
// [1 byte type] [4 bytes payload length, big-endian uint32] [payload].
func WriteMessage(w io.Writer, message Message) error {
	if len(message.Payload) > MaxPayloadLength {
		return fmt.Errorf("%w: payload length %d, maximum %d", ErrFrameTooLarge, len(message.Payload), MaxPayloadLength)
	}
	var header [messageHeaderLength]byte
	header[0] = message.Type
	binary.BigEndian.PutUint32(header[1:5], uint32(len(message.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("protocol: write message header: %w", err)
	}
	if len(message.Payload) > 0 {
		if _, err := w.Write(message.Payload); err != nil {
			return fmt.Errorf("protocol: write message payload: %w", err)
		}
	}
	return nil
}

// ReadMessage reads one framed message from r. Returns an error if
// the stream is malformed or the payload exceeds MaxPayloadLength.
func ReadMessage(r io.Reader) (Message, error) {
	var header [messageHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("protocol: read message header: %w", err)
	}
	messageType := header[0]
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > MaxPayloadLength {
		return Message{}, fmt.Errorf("%w: payload length %d, maximum %d", ErrFrameTooLarge, payloadLength, MaxPayloadLength)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Message{}, fmt.Errorf("protocol: read message payload: %w", err)
		}
	}
	return Message{Type: messageType, Payload: payload}, nil
}
