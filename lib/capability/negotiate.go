// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"fmt"
	"sort"
)

// Disposition is a namespace's fate within one session.
type Disposition uint8

const (
	// DispositionCommon: both sides interpret the namespace; tags
	// flow with full fidelity.
	DispositionCommon Disposition = iota

	// DispositionDegraded: at most one side interprets the
	// namespace; tags flow as opaque values, stored and forwarded
	// without interpretation. This is also the disposition of any
	// namespace neither side ever advertised.
	DispositionDegraded

	// DispositionRejected: the namespace is withheld from the
	// session's delta stream entirely.
	DispositionRejected
)

// String returns the disposition name, satisfying fmt.Stringer.
func (d Disposition) String() string {
	switch d {
	case DispositionCommon:
		return "common"
	case DispositionDegraded:
		return "degraded"
	case DispositionRejected:
		return "rejected"
	default:
		return fmt.Sprintf("disposition(%d)", d)
	}
}

// Mismatch is the warning attached to a partition when a namespace
// lands in DispositionRejected. It is informational, never fatal:
// the session continues for every other namespace.
type Mismatch struct {
	Namespace string
	Reason    string
}

// String renders "namespace: reason", satisfying fmt.Stringer.
func (m Mismatch) String() string {
	return m.Namespace + ": " + m.Reason
}

// Partition is the result of one session's negotiation: every
// namespace either side advertised, assigned a disposition, plus the
// effective version for Common namespaces and the warnings for
// Rejected ones.
//
// A Partition is immutable once computed and is installed on a
// session only when the handshake fully completed.
type Partition struct {
	dispositions map[string]Disposition
	versions     map[string]Version
	mismatches   []Mismatch
}

// DispositionOf returns the namespace's disposition. Namespaces
// absent from the partition (never advertised by either side) are
// Degraded: their tags were asserted by some plugin nobody on this
// session interprets, which is exactly the opaque carry-through
// case. Nil-safe.
func (p *Partition) DispositionOf(namespace string) Disposition {
	if p == nil {
		return DispositionDegraded
	}
	if d, ok := p.dispositions[namespace]; ok {
		return d
	}
	return DispositionDegraded
}

// Allows reports whether the namespace's tags may travel on this
// session in either direction.
func (p *Partition) Allows(namespace string) bool {
	return p.DispositionOf(namespace) != DispositionRejected
}

// EffectiveVersion returns the version a Common namespace operates
// at for this session.
func (p *Partition) EffectiveVersion(namespace string) (Version, bool) {
	if p == nil {
		return Version{}, false
	}
	v, ok := p.versions[namespace]
	return v, ok
}

// Namespaces returns the advertised namespaces holding the given
// disposition, sorted. Nil-safe.
func (p *Partition) Namespaces(d Disposition) []string {
	if p == nil {
		return nil
	}
	var namespaces []string
	for namespace, disposition := range p.dispositions {
		if disposition == d {
			namespaces = append(namespaces, namespace)
		}
	}
	sort.Strings(namespaces)
	return namespaces
}

// Mismatches returns the warnings raised during negotiation, sorted
// by namespace. Nil-safe.
func (p *Partition) Mismatches() []Mismatch {
	if p == nil {
		return nil
	}
	return p.mismatches
}

// Negotiate computes the tri-partition between the local peer's set
// and a remote peer's declaration. remoteUnsupported lists the
// namespaces the remote explicitly declined; an explicit decline
// overrides an advertised descriptor for the same namespace, since
// granting a capability the peer disclaimed can only lose data.
//
// Both ends of a handshake run this same function with the roles
// swapped and reach mirror-image partitions: Common and Degraded
// dispositions agree on both sides, so each side's outbound filter
// matches the other's expectation.
func Negotiate(local, remote *Set, remoteUnsupported []string) *Partition {
	declined := make(map[string]bool, len(remoteUnsupported))
	for _, namespace := range remoteUnsupported {
		declined[namespace] = true
	}

	universe := make(map[string]bool, local.Len()+remote.Len())
	for _, namespace := range local.Namespaces() {
		universe[namespace] = true
	}
	for _, namespace := range remote.Namespaces() {
		universe[namespace] = true
	}

	p := &Partition{
		dispositions: make(map[string]Disposition, len(universe)),
		versions:     make(map[string]Version),
	}
	for namespace := range universe {
		localDesc, hasLocal := local.Get(namespace)
		remoteDesc, hasRemote := remote.Get(namespace)
		if declined[namespace] {
			hasRemote = false
		}

		switch {
		case hasLocal && hasRemote:
			if localDesc.Version.Compatible(remoteDesc.Version) {
				p.dispositions[namespace] = DispositionCommon
				p.versions[namespace] = localDesc.Version.Effective(remoteDesc.Version)
			} else {
				p.reject(namespace, fmt.Sprintf("version %s incompatible with peer version %s",
					localDesc.Version, remoteDesc.Version))
			}
		case hasLocal:
			if localDesc.Required {
				reason := "required locally, absent on peer"
				if declined[namespace] {
					reason = "required locally, declined by peer"
				}
				p.reject(namespace, reason)
			} else {
				p.dispositions[namespace] = DispositionDegraded
			}
		case hasRemote:
			if remoteDesc.Required {
				p.reject(namespace, "required by peer, absent locally")
			} else {
				p.dispositions[namespace] = DispositionDegraded
			}
		}
	}

	sort.Slice(p.mismatches, func(i, j int) bool { return p.mismatches[i].Namespace < p.mismatches[j].Namespace })
	return p
}

// Degrade returns the partition a session falls back to when the
// handshake yields nothing (timeout, malformed reply): no Common
// namespaces at all. Local required namespaces are Rejected with a
// warning, everything else is Degraded. The session stays usable.
func Degrade(local *Set) *Partition {
	p := &Partition{
		dispositions: make(map[string]Disposition, local.Len()),
		versions:     make(map[string]Version),
	}
	for _, d := range local.All() {
		if d.Required {
			p.reject(d.Namespace, "required locally, peer capabilities unknown")
		} else {
			p.dispositions[d.Namespace] = DispositionDegraded
		}
	}
	return p
}

func (p *Partition) reject(namespace, reason string) {
	p.dispositions[namespace] = DispositionRejected
	p.mismatches = append(p.mismatches, Mismatch{Namespace: namespace, Reason: reason})
}
