// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"sort"

	"github.com/tagmesh/tagmesh/lib/capability"
	"github.com/tagmesh/tagmesh/lib/codec"
	"github.com/tagmesh/tagmesh/lib/tag"
	"github.com/tagmesh/tagmesh/lib/vclock"
)

// Version is the wire protocol version carried in every offer. A
// responder rejects offers from a different version rather than
// guessing at payload shapes; capability versioning (per namespace)
// is a separate, finer-grained mechanism.
const Version uint32 = 1

// CapabilityOffer opens the handshake: the initiator's identity and
// full capability declaration.
type CapabilityOffer struct {
	Protocol     uint32                  `cbor:"protocol"`
	Peer         tag.Origin              `cbor:"peer"`
	Capabilities []capability.Descriptor `cbor:"capabilities,omitempty"`
}

// CapabilityReply answers an offer with the responder's identity and
// declaration. Unsupported lists every offered namespace the
// responder does not support: an explicit decline marker, so the
// initiator can distinguish "peer never heard of this" from "peer
// saw it and declined".
type CapabilityReply struct {
	Peer         tag.Origin              `cbor:"peer"`
	Capabilities []capability.Descriptor `cbor:"capabilities,omitempty"`
	Unsupported  []string                `cbor:"unsupported,omitempty"`
}

// DeltaRequest asks the peer to replay every delta strictly after
// Since. Clocks are scoped per (node, origin) pair, so Since carries
// one version vector per node. An empty request asks for everything
// the peer has; a node absent from Since is requested from clock
// zero.
type DeltaRequest struct {
	Since []NodeClocks `cbor:"since,omitempty"`
}

// NodeClocks is one node's component of a delta request frontier.
type NodeClocks struct {
	Node   tag.NodeID    `cbor:"node"`
	Clocks vclock.Vector `cbor:"clocks"`
}

// NewDeltaRequest converts a journal frontier to its wire form,
// sorted by node ID for a deterministic encoding.
func NewDeltaRequest(f vclock.Frontier) DeltaRequest {
	var request DeltaRequest
	for node, clocks := range f {
		if len(clocks) == 0 {
			continue
		}
		request.Since = append(request.Since, NodeClocks{Node: node, Clocks: clocks.Clone()})
	}
	sort.Slice(request.Since, func(i, j int) bool {
		return request.Since[i].Node.Compare(request.Since[j].Node) < 0
	})
	return request
}

// Frontier converts the wire form back to a frontier.
func (r DeltaRequest) Frontier() vclock.Frontier {
	f := vclock.NewFrontier()
	for _, entry := range r.Since {
		for origin, clock := range entry.Clocks {
			f.Observe(entry.Node, origin, clock)
		}
	}
	return f
}

// WireTag is one tag assertion inside a DeltaMessage. The asserting
// origin is the delta's origin and is not repeated per tag. The
// value is a generalized any-tree, so tags from namespaces the
// receiver cannot interpret still travel intact.
type WireTag struct {
	Namespace string `cbor:"namespace"`
	Key       string `cbor:"key"`
	Value     any    `cbor:"value"`
}

// WireRef names a (namespace, key) removal target.
type WireRef struct {
	Namespace string `cbor:"namespace"`
	Key       string `cbor:"key"`
}

// DeltaMessage is the wire form of one tag.Delta.
type DeltaMessage struct {
	Node     tag.NodeID `cbor:"node"`
	Origin   tag.Origin `cbor:"origin"`
	Clock    uint64     `cbor:"clock"`
	Inserted []WireTag  `cbor:"inserted,omitempty"`
	Removed  []WireRef  `cbor:"removed,omitempty"`
}

// NewDeltaMessage converts a delta to its wire form. The delta must
// be valid; Validate it first if it came from outside.
func NewDeltaMessage(d tag.Delta) DeltaMessage {
	m := DeltaMessage{Node: d.Node, Origin: d.Origin, Clock: d.Clock}
	for _, t := range d.Inserted {
		m.Inserted = append(m.Inserted, WireTag{Namespace: t.Namespace, Key: t.Key, Value: t.Value.Interface()})
	}
	for _, r := range d.Removed {
		m.Removed = append(m.Removed, WireRef{Namespace: r.Namespace, Key: r.Key})
	}
	return m
}

// Delta converts the wire form back to a validated tag.Delta. Wire
// values become generalized tag values via tag.FromInterface, which
// rejects shapes the model cannot hold (nulls, NaN).
func (m DeltaMessage) Delta() (tag.Delta, error) {
	d := tag.Delta{Node: m.Node, Origin: m.Origin, Clock: m.Clock}
	for i, wt := range m.Inserted {
		value, err := tag.FromInterface(wt.Value)
		if err != nil {
			return tag.Delta{}, fmt.Errorf("protocol: delta tag %d (%s:%s): %w", i, wt.Namespace, wt.Key, err)
		}
		d.Inserted = append(d.Inserted, tag.Tag{Namespace: wt.Namespace, Key: wt.Key, Origin: m.Origin, Value: value})
	}
	for _, wr := range m.Removed {
		d.Removed = append(d.Removed, tag.TagRef{Namespace: wr.Namespace, Key: wr.Key})
	}
	if err := d.Validate(); err != nil {
		return tag.Delta{}, fmt.Errorf("protocol: %w", err)
	}
	return d, nil
}

// EncodeOffer frames an offer.
func EncodeOffer(offer CapabilityOffer) (Message, error) {
	return encodePayload(MessageTypeOffer, offer)
}

// DecodeOffer unpacks an offer frame.
func DecodeOffer(m Message) (CapabilityOffer, error) {
	var offer CapabilityOffer
	err := decodePayload(m, MessageTypeOffer, &offer)
	return offer, err
}

// EncodeReply frames a reply.
func EncodeReply(reply CapabilityReply) (Message, error) {
	return encodePayload(MessageTypeReply, reply)
}

// DecodeReply unpacks a reply frame.
func DecodeReply(m Message) (CapabilityReply, error) {
	var reply CapabilityReply
	err := decodePayload(m, MessageTypeReply, &reply)
	return reply, err
}

// EncodeDeltaRequest frames a delta request.
func EncodeDeltaRequest(request DeltaRequest) (Message, error) {
	return encodePayload(MessageTypeDeltaRequest, request)
}

// DecodeDeltaRequest unpacks a delta request frame.
func DecodeDeltaRequest(m Message) (DeltaRequest, error) {
	var request DeltaRequest
	err := decodePayload(m, MessageTypeDeltaRequest, &request)
	return request, err
}

// EncodeDelta frames a delta message.
func EncodeDelta(delta DeltaMessage) (Message, error) {
	return encodePayload(MessageTypeDelta, delta)
}

// DecodeDelta unpacks a delta frame.
func DecodeDelta(m Message) (DeltaMessage, error) {
	var delta DeltaMessage
	err := decodePayload(m, MessageTypeDelta, &delta)
	return delta, err
}

func encodePayload(messageType byte, v any) (Message, error) {
	payload, err := codec.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("protocol: encode message type 0x%02x: %w", messageType, err)
	}
	return Message{Type: messageType, Payload: payload}, nil
}

func decodePayload(m Message, wantType byte, v any) error {
	if m.Type != wantType {
		return fmt.Errorf("protocol: message type 0x%02x, want 0x%02x", m.Type, wantType)
	}
	if err := codec.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("protocol: decode message type 0x%02x: %w", m.Type, err)
	}
	return nil
}
