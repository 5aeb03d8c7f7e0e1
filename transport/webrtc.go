// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/tagmesh/tagmesh/lib/clock"
)

// Compile-time interface checks.
var (
	_ Listener = (*WebRTCTransport)(nil)
	_ Dialer   = (*WebRTCTransport)(nil)
)

// signalingPollInterval is how often the transport polls for inbound
// signaling offers.
const signalingPollInterval = 2 * time.Second

// iceGatherTimeout bounds ICE candidate gathering before the SDP is
// published.
const iceGatherTimeout = 15 * time.Second

// answerPollInterval is how often the dialer polls for an SDP answer
// after publishing an offer.
const answerPollInterval = 500 * time.Millisecond

// answerTimeout bounds the wait for an SDP answer.
const answerTimeout = 30 * time.Second

// channelOpenTimeout bounds the wait for a new data channel to open
// on an established peer connection.
const channelOpenTimeout = 10 * time.Second

// WebRTCConfig holds the parameters for a WebRTC transport.
type WebRTCConfig struct {
	// Signaler exchanges SDP offers and answers. Required.
	Signaler Signaler

	// Name identifies this peer in signaling and is the address other
	// peers dial. Required.
	Name string

	// ICEServers lists STUN/TURN servers for candidate gathering.
	// Empty means host candidates only, sufficient for same-LAN use.
	ICEServers []webrtc.ICEServer

	// Clock drives polling and timeouts. Nil means the real clock.
	Clock clock.Clock

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger
}

// WebRTCTransport syncs peers over WebRTC data channels, reaching
// NAT'd home servers that TCP cannot. One instance is both Listener
// and Dialer: each remote peer gets a single PeerConnection, and each
// dialed or accepted sync stream is one SCTP-multiplexed data channel
// on it.
type WebRTCTransport struct {
	signaler   Signaler
	name       string
	iceServers []webrtc.ICEServer
	clock      clock.Clock
	logger     *slog.Logger

	// peers maps remote peer name to its connection state.
	mu    sync.Mutex
	peers map[string]*peerLink

	// incoming carries data channels opened by remote peers.
	incoming chan Conn

	closed    chan struct{}
	closeOnce sync.Once

	// channelCounter generates unique data channel labels.
	channelCounter atomic.Uint64
}

// peerLink tracks the PeerConnection to one remote peer. Fields are
// guarded by WebRTCTransport.mu.
type peerLink struct {
	connection  *webrtc.PeerConnection
	peer        string
	established chan struct{} // closed when ICE reaches Connected/Completed
}

// NewWebRTCTransport creates a transport and starts its signaling
// poller. Close stops it.
func NewWebRTCTransport(cfg WebRTCConfig) (*WebRTCTransport, error) {
	if cfg.Signaler == nil {
		return nil, fmt.Errorf("transport: WebRTCConfig.Signaler is required")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("transport: WebRTCConfig.Name is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	wt := &WebRTCTransport{
		signaler:   cfg.Signaler,
		name:       cfg.Name,
		iceServers: cfg.ICEServers,
		clock:      clk,
		logger:     logger,
		peers:      make(map[string]*peerLink),
		incoming:   make(chan Conn, 16),
		closed:     make(chan struct{}),
	}
	go wt.pollSignals()
	return wt, nil
}

// Accept blocks until a remote peer opens a data channel.
func (wt *WebRTCTransport) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-wt.incoming:
		return conn, nil
	case <-wt.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Address returns this peer's signaling name.
func (wt *WebRTCTransport) Address() string { return wt.name }

// Close tears down every PeerConnection and stops the poller.
// Idempotent.
func (wt *WebRTCTransport) Close() error {
	wt.closeOnce.Do(func() { close(wt.closed) })

	wt.mu.Lock()
	defer wt.mu.Unlock()
	for peer, link := range wt.peers {
		link.connection.Close()
		delete(wt.peers, peer)
	}
	return nil
}

// DialContext opens a data channel to the peer signaling under
// address, establishing a PeerConnection first if none exists. Each
// call yields a fresh ordered, reliable stream.
func (wt *WebRTCTransport) DialContext(ctx context.Context, address string) (Conn, error) {
	select {
	case <-wt.closed:
		return nil, ErrClosed
	default:
	}

	link, err := wt.linkTo(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("transport: peer connection to %s: %w", address, err)
	}
	select {
	case <-link.established:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wt.closed:
		return nil, ErrClosed
	}
	return wt.openDataChannel(link)
}

// linkTo returns the peerLink for a remote peer, running signaling
// for a new PeerConnection when needed. Concurrent dials to the same
// peer share one establishment attempt.
func (wt *WebRTCTransport) linkTo(ctx context.Context, peer string) (*peerLink, error) {
	wt.mu.Lock()
	if link, ok := wt.peers[peer]; ok {
		state := link.connection.ICEConnectionState()
		if state != webrtc.ICEConnectionStateFailed && state != webrtc.ICEConnectionStateClosed {
			wt.mu.Unlock()
			return link, nil
		}
		link.connection.Close()
		delete(wt.peers, peer)
	}

	// Register the link before releasing the lock, so concurrent
	// dials wait on established instead of signaling in parallel.
	pc, err := wt.newPeerConnection()
	if err != nil {
		wt.mu.Unlock()
		return nil, err
	}
	link := &peerLink{connection: pc, peer: peer, established: make(chan struct{})}
	wt.peers[peer] = link
	wt.mu.Unlock()

	if err := wt.offerTo(ctx, link); err != nil {
		wt.mu.Lock()
		if current, ok := wt.peers[peer]; ok && current == link {
			delete(wt.peers, peer)
		}
		wt.mu.Unlock()
		pc.Close()
		return nil, err
	}
	return link, nil
}

// offerTo runs the offering side of signaling for a registered link.
func (wt *WebRTCTransport) offerTo(ctx context.Context, link *peerLink) error {
	pc := link.connection
	peer := link.peer

	pc.OnDataChannel(func(dc *webrtc.DataChannel) { wt.adoptDataChannel(dc, peer) })
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		wt.trackICEState(link, state)
	})

	// A placeholder channel forces a data channel section into the
	// SDP; neither side uses it.
	if _, err := pc.CreateDataChannel("setup", nil); err != nil {
		return fmt.Errorf("creating setup channel: %w", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gathered:
	case <-wt.clock.After(iceGatherTimeout):
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := wt.signaler.PublishOffer(ctx, wt.name, peer, pc.LocalDescription().SDP); err != nil {
		return fmt.Errorf("publishing SDP offer: %w", err)
	}
	wt.logger.Info("published SDP offer", "peer", peer)

	answerSDP, err := wt.awaitAnswer(ctx, peer)
	if err != nil {
		return fmt.Errorf("waiting for SDP answer from %s: %w", peer, err)
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}
	return nil
}

// awaitAnswer polls the signaler for the peer's SDP answer.
func (wt *WebRTCTransport) awaitAnswer(ctx context.Context, peer string) (string, error) {
	deadline := wt.clock.After(answerTimeout)
	ticker := wt.clock.NewTicker(answerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return "", fmt.Errorf("timed out after %s", answerTimeout)
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wt.closed:
			return "", ErrClosed
		case <-ticker.C:
			answers, err := wt.signaler.PollAnswers(ctx, wt.name)
			if err != nil {
				wt.logger.Warn("polling for SDP answers failed", "error", err)
				continue
			}
			for _, answer := range answers {
				if answer.Peer == peer {
					return answer.SDP, nil
				}
			}
		}
	}
}

// pollSignals answers inbound offers until the transport closes.
func (wt *WebRTCTransport) pollSignals() {
	ticker := wt.clock.NewTicker(signalingPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-wt.closed:
			return
		case <-ticker.C:
			wt.answerPendingOffers()
		}
	}
}

func (wt *WebRTCTransport) answerPendingOffers() {
	ctx := context.Background()
	offers, err := wt.signaler.PollOffers(ctx, wt.name)
	if err != nil {
		wt.logger.Warn("polling for SDP offers failed", "error", err)
		return
	}

	for _, offer := range offers {
		wt.mu.Lock()
		existing, hasExisting := wt.peers[offer.Peer]
		wt.mu.Unlock()
		if hasExisting {
			state := existing.connection.ICEConnectionState()
			live := state != webrtc.ICEConnectionStateFailed && state != webrtc.ICEConnectionStateClosed
			// Simultaneous dial: both sides offered. The smaller name
			// is the canonical offerer; the other side yields and
			// answers instead.
			if live && offer.Peer > wt.name {
				continue
			}
			wt.mu.Lock()
			existing.connection.Close()
			delete(wt.peers, offer.Peer)
			wt.mu.Unlock()
		}
		if err := wt.answerOffer(ctx, offer); err != nil {
			wt.logger.Error("answering SDP offer failed",
				"peer", offer.Peer,
				"error", err,
			)
		}
	}
}

// answerOffer runs the answering side of signaling for one inbound
// offer.
func (wt *WebRTCTransport) answerOffer(ctx context.Context, offer SignalMessage) error {
	pc, err := wt.newPeerConnection()
	if err != nil {
		return err
	}
	link := &peerLink{connection: pc, peer: offer.Peer, established: make(chan struct{})}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) { wt.adoptDataChannel(dc, offer.Peer) })
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		wt.trackICEState(link, state)
	})

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remote); err != nil {
		pc.Close()
		return fmt.Errorf("setting remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gathered:
	case <-wt.clock.After(iceGatherTimeout):
		pc.Close()
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		pc.Close()
		return ctx.Err()
	}
	if err := wt.signaler.PublishAnswer(ctx, wt.name, offer.Peer, pc.LocalDescription().SDP); err != nil {
		pc.Close()
		return fmt.Errorf("publishing SDP answer: %w", err)
	}

	wt.mu.Lock()
	wt.peers[offer.Peer] = link
	wt.mu.Unlock()
	wt.logger.Info("answered SDP offer", "peer", offer.Peer)
	return nil
}

// adoptDataChannel hands an inbound data channel to Accept. The
// "setup" placeholder channel is discarded on open; a blocked read on
// it would waste a goroutine and contend inside SCTP.
func (wt *WebRTCTransport) adoptDataChannel(dc *webrtc.DataChannel, peer string) {
	if dc.Label() == "setup" {
		dc.OnOpen(func() { dc.Close() })
		return
	}
	dc.OnOpen(func() {
		raw, err := dc.Detach()
		if err != nil {
			wt.logger.Error("detaching inbound data channel failed",
				"peer", peer,
				"label", dc.Label(),
				"error", err,
			)
			return
		}
		conn := newDataChannelConn(raw, dc.Label(), peer)
		select {
		case wt.incoming <- conn:
		case <-wt.closed:
			conn.Close()
		}
	})
}

// trackICEState closes the established signal when ICE connects, and
// drops dead links from the peer map.
func (wt *WebRTCTransport) trackICEState(link *peerLink, state webrtc.ICEConnectionState) {
	wt.logger.Debug("ICE state change", "peer", link.peer, "state", state.String())
	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		select {
		case <-link.established:
		default:
			close(link.established)
		}
	case webrtc.ICEConnectionStateFailed:
		wt.logger.Warn("peer connection failed, next dial re-establishes", "peer", link.peer)
	case webrtc.ICEConnectionStateClosed:
		wt.mu.Lock()
		if current, ok := wt.peers[link.peer]; ok && current == link {
			delete(wt.peers, link.peer)
		}
		wt.mu.Unlock()
	}
}

// openDataChannel creates one ordered, reliable data channel on an
// established link.
func (wt *WebRTCTransport) openDataChannel(link *peerLink) (Conn, error) {
	label := fmt.Sprintf("sync-%d", wt.channelCounter.Add(1))
	ordered := true
	dc, err := link.connection.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("transport: creating data channel %s: %w", label, err)
	}

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })
	select {
	case <-opened:
	case <-wt.clock.After(channelOpenTimeout):
		dc.Close()
		return nil, fmt.Errorf("transport: data channel %s did not open within %s", label, channelOpenTimeout)
	case <-wt.closed:
		dc.Close()
		return nil, ErrClosed
	}

	raw, err := dc.Detach()
	if err != nil {
		dc.Close()
		return nil, fmt.Errorf("transport: detaching data channel %s: %w", label, err)
	}
	return newDataChannelConn(raw, label, link.peer), nil
}

// newPeerConnection builds a pion PeerConnection with detached data
// channels (for stream access) and loopback candidates (for
// same-machine peers).
func (wt *WebRTCTransport) newPeerConnection() (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.DetachDataChannels()
	settingEngine.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: wt.iceServers})
	if err != nil {
		return nil, fmt.Errorf("transport: creating peer connection: %w", err)
	}
	return pc, nil
}
