// Package ratelimit governs the server's normal broadcast lane. The
// limit adapts to delivery ratios reported by clients in their pings:
// additive increase to probe headroom, multiplicative decrease when any
// peer reports heavy loss. Broadcast is a shared channel, so one lossy
// peer slows everyone — that is the point.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"lancast/internal/observability"
)

// deliveredTarget is the delivery ratio below which the rate backs off.
const deliveredTarget = 0.5

// evictionWindows is how many seconds of silence (at the current rate)
// a peer survives before its accounting is dropped.
const evictionWindows = 100

// PeerReport is one ping's worth of feedback: how many of our packets
// the peer saw since its previous ping.
type PeerReport struct {
	Peer  string
	Recvs uint64
}

// Limiter is a packets-per-second governor with a one second
// accounting window. OnPacket suspends the caller once the window's
// budget is spent.
type Limiter struct {
	min, max int
	rate     atomic.Int64

	mu          sync.Mutex
	peers       map[string]uint64
	windowStart time.Time
	inWindow    int

	reports chan PeerReport
	log     zerolog.Logger
	metrics *observability.Metrics
}

// New creates a limiter bounded to [min, max] packets per second,
// starting at min, and starts its governor. min must not exceed max.
func New(min, max int, log zerolog.Logger, metrics *observability.Metrics) *Limiter {
	if min > max {
		panic("ratelimit: min rate above max")
	}
	l := &Limiter{
		min:         min,
		max:         max,
		peers:       make(map[string]uint64),
		windowStart: time.Now(),
		reports:     make(chan PeerReport, 100),
		log:         log,
		metrics:     metrics,
	}
	l.rate.Store(int64(min))
	metrics.SetRateLimit(min)
	go l.govern()
	return l
}

// Rate returns the current limit in packets per second.
func (l *Limiter) Rate() int {
	return int(l.rate.Load())
}

// Collector returns the channel ping feedback is fed into.
func (l *Limiter) Collector() chan<- PeerReport {
	return l.reports
}

// OnPacket accounts for one admitted packet. If the packet would exceed
// the current rate, the caller is suspended until the accounting window
// rolls over. Every admitted packet bumps the sent-counter of every
// tracked peer; peers silent for evictionWindows seconds are dropped.
func (l *Limiter) OnPacket() {
	const window = time.Second

	l.mu.Lock()
	l.inWindow++
	now := time.Now()
	if now.Sub(l.windowStart) > window {
		l.inWindow = 1
		l.windowStart = now
	} else if l.inWindow > l.Rate() {
		wait := l.windowStart.Add(window).Sub(now)
		sent := l.inWindow
		l.mu.Unlock()
		l.log.Debug().Dur("wait", wait).Int("sent", sent).Msg("rate limit reached, pausing")
		time.Sleep(wait)
		l.mu.Lock()
		l.inWindow = 1
		l.windowStart = time.Now()
	}

	limit := uint64(l.Rate()) * evictionWindows
	for peer := range l.peers {
		l.peers[peer]++
		if l.peers[peer] > limit {
			l.log.Info().Str("peer", peer).Msg("peer went quiet, dropping its accounting")
			delete(l.peers, peer)
		}
	}
	l.metrics.SetPeersTracked(len(l.peers))
	l.mu.Unlock()
}

func (l *Limiter) govern() {
	for report := range l.reports {
		l.handleReport(report)
	}
}

// handleReport applies one ping's feedback. The first report from a
// peer only registers it; later reports compare what the peer saw
// against what we sent since its previous report, then reset the
// counter for the next epoch.
func (l *Limiter) handleReport(report PeerReport) {
	l.mu.Lock()
	sent, known := l.peers[report.Peer]
	l.peers[report.Peer] = 0
	l.mu.Unlock()

	if !known {
		l.log.Debug().Str("peer", report.Peer).Msg("first ping from peer, starting accounting")
		return
	}
	if sent == 0 {
		return
	}

	delivered := float64(report.Recvs) / float64(sent)
	cur := l.Rate()
	if delivered < deliveredTarget {
		next := int(float64(cur) * 0.9)
		if next < l.min {
			next = l.min
		}
		l.rate.Store(int64(next))
		l.log.Info().
			Str("peer", report.Peer).
			Float64("delivered", delivered).
			Int("rate", next).
			Msg("heavy loss reported, decreasing rate")
	} else {
		next := cur + 5
		if next > l.max {
			next = l.max
		}
		l.rate.Store(int64(next))
		l.log.Debug().
			Str("peer", report.Peer).
			Float64("delivered", delivered).
			Int("rate", next).
			Msg("delivery healthy, increasing rate")
	}
	l.metrics.SetRateLimit(l.Rate())
}
