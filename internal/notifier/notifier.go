package notifier

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banyan/banyan/internal/logx"
)

// workerConn is the per-connection state spec.md §4.6 describes: worker
// name, socket, FIFO of pending frames, pending_shutdown flag. The FIFO is
// a buffered channel; Go's netpoller provides the "level-triggered
// writeable readiness, one-shot re-arming on enqueue" behavior spec.md
// asks for, so the writer goroutine below simply blocks on the channel
// and on Write — no explicit epoll/select bookkeeping is needed the way it
// would be in a language without a runtime-integrated poller.
type workerConn struct {
	workerID string
	addr     string
	conn     net.Conn
	queue    chan Frame
	done     chan struct{}

	mu              sync.Mutex
	pendingShutdown bool
}

// DeadWorkerFunc is invoked when a worker's socket fails outside of a
// clean unregister, so the caller can cancel every task the worker holds
// (spec.md §4.6: "on other errors close the connection and enqueue a
// cancellation for every task claimed by the dead worker").
type DeadWorkerFunc func(workerID string)

// Notifier is Banyan's worker control-channel reactor: one outbound TCP
// connection per registered worker, each drained by its own goroutine.
// This is the "single background reactor thread... multiplexed by a
// readiness mechanism" of spec.md §4.6, expressed with Go's
// goroutine-per-connection idiom rather than a hand-rolled event loop, the
// way the teacher's compute/components package assigns one goroutine per
// lifecycle duty instead of a single monolithic select loop.
type Notifier struct {
	log *logx.Logger

	serverToken [16]byte

	onDeadWorker DeadWorkerFunc
	onFrameSent  func(FrameType)
	onFrameFail  func(FrameType)

	mu    sync.Mutex
	conns map[string]*workerConn
}

// New builds a Notifier with a freshly minted server request token — the
// value a worker uses to authenticate that a frame genuinely came from
// this server (spec.md §4.6: "16-byte request-token authenticating the
// server to the worker").
func New(log *logx.Logger, onDeadWorker DeadWorkerFunc) (*Notifier, error) {
	var token [16]byte
	if _, err := rand.Read(token[:]); err != nil {
		return nil, fmt.Errorf("notifier: generate server token: %w", err)
	}
	return &Notifier{
		log:          log,
		serverToken:  token,
		onDeadWorker: onDeadWorker,
		conns:        make(map[string]*workerConn),
	}, nil
}

// SetMetricsHooks wires optional counters the coordinator observes frame
// delivery through; both may be nil.
func (n *Notifier) SetMetricsHooks(onSent, onFail func(FrameType)) {
	n.onFrameSent = onSent
	n.onFrameFail = onFail
}

// Register implements register(name, addr): dial the worker's control
// socket and start its writer goroutine. Connection errors are returned
// directly to the caller (spec.md: "errors still reported").
func (n *Notifier) Register(workerID, addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("notifier: dial worker %q at %q: %w", workerID, addr, err)
	}

	wc := &workerConn{
		workerID: workerID,
		addr:     addr,
		conn:     conn,
		queue:    make(chan Frame, 64),
		done:     make(chan struct{}),
	}

	n.mu.Lock()
	if old, ok := n.conns[workerID]; ok {
		n.closeConn(old)
	}
	n.conns[workerID] = wc
	n.mu.Unlock()

	go n.writerLoop(wc)
	return nil
}

// Notify implements notify(name, msg): enqueue a frame for delivery.
func (n *Notifier) Notify(workerID string, frameType FrameType, payload [16]byte) error {
	n.mu.Lock()
	wc, ok := n.conns[workerID]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("notifier: worker %q is not registered", workerID)
	}

	f := Frame{ServerToken: n.serverToken, Type: frameType, Payload: payload}
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if wc.pendingShutdown {
		return fmt.Errorf("notifier: worker %q connection is closed", workerID)
	}
	select {
	case wc.queue <- f:
		return nil
	case <-wc.done:
		return fmt.Errorf("notifier: worker %q connection is closed", workerID)
	}
}

// Unregister implements unregister(name): mark pending_shutdown; the
// writer goroutine drains whatever remains queued, then closes.
func (n *Notifier) Unregister(workerID string) {
	n.mu.Lock()
	wc, ok := n.conns[workerID]
	if ok {
		delete(n.conns, workerID)
	}
	n.mu.Unlock()
	if !ok {
		return
	}
	n.closeConn(wc)
}

// Shutdown closes every connection, draining best-effort — the "signal-
// initiated shutdown drains pending frames best-effort, then exits"
// requirement of spec.md §7.
func (n *Notifier) Shutdown() {
	n.mu.Lock()
	ids := make([]string, 0, len(n.conns))
	for id := range n.conns {
		ids = append(ids, id)
	}
	n.mu.Unlock()
	for _, id := range ids {
		n.Unregister(id)
	}
}

func (n *Notifier) writerLoop(wc *workerConn) {
	defer close(wc.done)
	defer wc.conn.Close()

	for f := range wc.queue {
		buf := f.Encode()
		if _, err := wc.conn.Write(buf[:]); err != nil {
			n.log.Warnf("notifier: write to worker %q failed: %v", wc.workerID, err)
			if n.onFrameFail != nil {
				n.onFrameFail(f.Type)
			}
			n.mu.Lock()
			if current, ok := n.conns[wc.workerID]; ok && current == wc {
				delete(n.conns, wc.workerID)
			}
			n.mu.Unlock()
			if n.onDeadWorker != nil {
				n.onDeadWorker(wc.workerID)
			}
			return
		}
		if n.onFrameSent != nil {
			n.onFrameSent(f.Type)
		}
	}
}

func (n *Notifier) closeConn(wc *workerConn) {
	wc.mu.Lock()
	wc.pendingShutdown = true
	wc.mu.Unlock()
	close(wc.queue)
}

// IsRegistered reports whether a worker currently has an open connection.
func (n *Notifier) IsRegistered(workerID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.conns[workerID]
	return ok
}
