// Package bus is the process-local fan-out layer between the matching
// engine and streaming sessions. Topics follow a closed grammar; every
// frame on one topic is delivered in pair-sequence order. Delivery is
// best-effort: a slow or failing session is dropped and expected to
// resync from a snapshot on reconnect.
package bus

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helixmarkets/helix/pkg/book"
	"github.com/helixmarkets/helix/pkg/engine"
	"github.com/helixmarkets/helix/pkg/order"
)

// Session is one attached stream consumer. Send must not block
// indefinitely; a returned error drops the session.
type Session interface {
	ID() string
	Send(f Frame) error
	Close()
}

// Snapshots provides the initial frames for book and ticker topics.
type Snapshots interface {
	BookSnapshot(pair string, depth int) (book.Snapshot, error)
	Ticker(pair string) (engine.Ticker, error)
}

// Options tune queueing and coalescing.
type Options struct {
	// QueueSize bounds the per-session frame queue. A full queue drops
	// the session.
	QueueSize int
	// SnapshotDepth is the levels-per-side bound on published book
	// snapshots.
	SnapshotDepth int
	// TickerInterval is the minimum gap between ticker frames per pair.
	TickerInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.SnapshotDepth <= 0 {
		o.SnapshotDepth = 20
	}
	if o.TickerInterval <= 0 {
		o.TickerInterval = 500 * time.Millisecond
	}
	return o
}

type session struct {
	sess   Session
	queue  chan Frame
	closed chan struct{}
	once   sync.Once
	topics map[string]bool
}

// Bus routes engine events to subscribed sessions.
type Bus struct {
	snaps Snapshots
	log   *zap.SugaredLogger
	opts  Options

	mu       sync.RWMutex
	sessions map[string]*session
	byTopic  map[string]map[string]*session

	tickMu     sync.Mutex
	lastTicker map[string]time.Time

	bookMu   sync.Mutex
	lastBook map[string]uint64
}

func New(snaps Snapshots, log *zap.SugaredLogger, opts Options) *Bus {
	return &Bus{
		snaps:      snaps,
		log:        log,
		opts:       opts.withDefaults(),
		sessions:   make(map[string]*session),
		byTopic:    make(map[string]map[string]*session),
		lastTicker: make(map[string]time.Time),
		lastBook:   make(map[string]uint64),
	}
}

// Attach registers a session and starts its writer. The welcome frame
// is the first thing the consumer sees.
func (b *Bus) Attach(s Session) {
	ss := &session{
		sess:   s,
		queue:  make(chan Frame, b.opts.QueueSize),
		closed: make(chan struct{}),
		topics: make(map[string]bool),
	}
	b.mu.Lock()
	if old, ok := b.sessions[s.ID()]; ok {
		b.removeLocked(old, s.ID())
	}
	b.sessions[s.ID()] = ss
	b.mu.Unlock()

	go b.pump(s.ID(), ss)
	b.enqueue(s.ID(), ss, frame("welcome", "", map[string]string{"sessionId": s.ID()}))
	b.log.Infow("session_attached", "session", s.ID())
}

// Detach removes a session from every topic and stops its writer.
func (b *Bus) Detach(sessionID string) {
	b.mu.Lock()
	ss, ok := b.sessions[sessionID]
	if ok {
		b.removeLocked(ss, sessionID)
	}
	b.mu.Unlock()
	if ok {
		b.log.Infow("session_detached", "session", sessionID)
	}
}

// removeLocked unlinks the session and signals its pump. Caller holds
// b.mu.
func (b *Bus) removeLocked(ss *session, sessionID string) {
	delete(b.sessions, sessionID)
	for topic := range ss.topics {
		if m := b.byTopic[topic]; m != nil {
			delete(m, sessionID)
			if len(m) == 0 {
				delete(b.byTopic, topic)
			}
		}
	}
	ss.once.Do(func() { close(ss.closed) })
}

func (b *Bus) pump(sessionID string, ss *session) {
	defer ss.sess.Close()
	for {
		select {
		case f := <-ss.queue:
			if err := ss.sess.Send(f); err != nil {
				b.log.Debugw("session_send_failed", "session", sessionID, "err", err)
				go b.Detach(sessionID)
				return
			}
		case <-ss.closed:
			return
		}
	}
}

// enqueue queues a frame without blocking. A full queue means the
// consumer is not keeping up; it gets dropped rather than stalling the
// publisher.
func (b *Bus) enqueue(sessionID string, ss *session, f Frame) {
	select {
	case ss.queue <- f:
	case <-ss.closed:
	default:
		b.log.Warnw("session_queue_full", "session", sessionID)
		go b.Detach(sessionID)
	}
}

// Subscribe validates the topic, registers the session on it, and for
// book/ticker topics queues the current snapshot ahead of any delta. An
// invalid topic sends an error frame and returns the error.
func (b *Bus) Subscribe(sessionID, rawTopic string) error {
	b.mu.RLock()
	ss, ok := b.sessions[sessionID]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}

	t, err := ParseTopic(rawTopic)
	if err == nil && t.pairScoped() {
		if _, serr := b.snaps.BookSnapshot(t.Arg, 1); serr != nil {
			err = fmt.Errorf("unknown pair %s", t.Arg)
		}
	}
	if err != nil {
		b.enqueue(sessionID, ss, frame("error", rawTopic, map[string]string{"error": err.Error()}))
		return err
	}

	b.mu.Lock()
	ss.topics[t.String()] = true
	m := b.byTopic[t.String()]
	if m == nil {
		m = make(map[string]*session)
		b.byTopic[t.String()] = m
	}
	m[sessionID] = ss
	b.mu.Unlock()

	b.enqueue(sessionID, ss, frame("subscribe", t.String(), nil))

	switch t.Kind {
	case TopicOrderbook:
		if snap, serr := b.snaps.BookSnapshot(t.Arg, b.opts.SnapshotDepth); serr == nil {
			b.enqueue(sessionID, ss, frame("orderbook", t.String(), snap))
		}
	case TopicTicker:
		if tk, serr := b.snaps.Ticker(t.Arg); serr == nil {
			b.enqueue(sessionID, ss, frame("ticker", t.String(), tk))
		}
	}
	return nil
}

// Unsubscribe drops one topic from a session.
func (b *Bus) Unsubscribe(sessionID, rawTopic string) error {
	t, err := ParseTopic(rawTopic)
	if err != nil {
		return err
	}

	b.mu.Lock()
	ss, ok := b.sessions[sessionID]
	if ok {
		delete(ss.topics, t.String())
		if m := b.byTopic[t.String()]; m != nil {
			delete(m, sessionID)
			if len(m) == 0 {
				delete(b.byTopic, t.String())
			}
		}
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	b.enqueue(sessionID, ss, frame("unsubscribe", t.String(), nil))
	return nil
}

// publish fans one frame out to every session on a topic. The session
// registry lock is held only for map access; Send runs on the per-
// session pump.
func (b *Bus) publish(topic string, f Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ss := range b.byTopic[topic] {
		b.enqueue(id, ss, f)
	}
}

// SessionCount reports attached sessions.
func (b *Bus) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// CloseAll drops every session, for shutdown.
func (b *Bus) CloseAll() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.Detach(id)
	}
}

// The engine publishes through the Publisher interface; frames carry
// the same fixed-point integers the REST snapshots use.
var _ engine.Publisher = (*Bus)(nil)

// PublishBookChange emits a fresh depth-bounded snapshot for the pair.
// The snapshot is taken after the event it announces, so it may already
// carry a newer sequence than seq; the label only ever moves up so it
// stays consistent with the content. Frames at or below the last
// published sequence are dropped: each book frame is a full snapshot,
// so a newer one has already superseded them.
func (b *Bus) PublishBookChange(pair string, seq uint64) {
	snap, err := b.snaps.BookSnapshot(pair, b.opts.SnapshotDepth)
	if err != nil {
		return
	}
	if snap.Sequence < seq {
		snap.Sequence = seq
	}

	b.bookMu.Lock()
	defer b.bookMu.Unlock()
	if snap.Sequence <= b.lastBook[pair] {
		return
	}
	b.lastBook[pair] = snap.Sequence
	b.publish(orderbookTopic(pair), frame("orderbook", orderbookTopic(pair), snap))
}

// PublishTrade emits the trade frame, then a coalesced ticker update.
func (b *Bus) PublishTrade(t order.Trade) {
	b.publish(tradeTopic(t.Pair), frame("trade", tradeTopic(t.Pair), tradeMsg(t)))
	b.maybeTicker(t.Pair)
}

// PublishOrderUpdate emits the transition on the owner's private topic.
func (b *Bus) PublishOrderUpdate(o order.Order) {
	b.publish(ordersTopic(o.UserID), frame("orders", ordersTopic(o.UserID), orderMsg(o)))
}

// maybeTicker publishes ticker@<pair> and ticker@all, rate-limited per
// pair so a burst of trades coalesces into one frame.
func (b *Bus) maybeTicker(pair string) {
	b.tickMu.Lock()
	last := b.lastTicker[pair]
	now := time.Now()
	if now.Sub(last) < b.opts.TickerInterval {
		b.tickMu.Unlock()
		return
	}
	b.lastTicker[pair] = now
	b.tickMu.Unlock()

	tk, err := b.snaps.Ticker(pair)
	if err != nil {
		return
	}
	b.publish(tickerTopic(pair), frame("ticker", tickerTopic(pair), tk))
	b.publish(tickerAllTopic, frame("ticker", tickerAllTopic, tk))
}
