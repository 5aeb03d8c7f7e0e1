// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "io"

// dataChannelConn wraps a detached pion data channel as a Conn. The
// detached channel is stream-oriented (SCTP reassembles messages), so
// nothing more than labeling is needed here.
type dataChannelConn struct {
	rwc   io.ReadWriteCloser
	label string
	peer  string
}

func newDataChannelConn(rwc io.ReadWriteCloser, label, peer string) *dataChannelConn {
	return &dataChannelConn{rwc: rwc, label: label, peer: peer}
}

func (c *dataChannelConn) Read(p []byte) (int, error)  { return c.rwc.Read(p) }
func (c *dataChannelConn) Write(p []byte) (int, error) { return c.rwc.Write(p) }
func (c *dataChannelConn) Close() error                { return c.rwc.Close() }
