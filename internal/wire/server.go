package wire

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/chenyukaola/feeds-service/internal/sessionparser"
	"github.com/chenyukaola/feeds-service/internal/transport"
)

// Server accepts peer connections on a single TCP listener, feeding each
// one's bytes through its own sessionparser.Parser. Socket reads run one
// goroutine per connection, but every completed section is funneled
// through a single serialDispatcher loop before it ever reaches the real
// Dispatcher — the subscription index behind it is deliberately
// un-mutexed (spec.md §5's single-threaded model), so nothing outside
// that one loop goroutine may call Handle or Disconnect.
type Server struct {
	cacheDir string
	queue    *Queue
	disp     Dispatcher
	logger   *zap.Logger
}

// NewServer constructs a Server. cacheDir is where sessionparser spools
// in-flight request bodies, directly in cacheDir with each connection's
// node id as the file name prefix.
func NewServer(cacheDir string, queue *Queue, disp Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cacheDir: cacheDir, queue: queue, disp: disp, logger: logger}
}

// Serve accepts connections on lis until ctx is done or Accept fails. All
// accepted connections share one serialDispatcher, so their sections are
// handled one at a time regardless of how many peers are connected.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	sd := newSerialDispatcher(ctx, s.disp)
	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wire: accept: %w", err)
		}
		go s.handleConn(ctx, conn, sd)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn, disp Dispatcher) {
	nodeID, err := newNodeID()
	if err != nil {
		s.logger.Error("wire: assign node id", zap.Error(err))
		_ = conn.Close()
		return
	}
	s.logger.Info("wire: connection accepted", zap.String("node_id", nodeID), zap.String("remote_addr", conn.RemoteAddr().String()))
	s.queue.Register(nodeID, conn)
	defer func() {
		s.queue.Unregister(nodeID)
		disp.Disconnect(nodeID)
		_ = conn.Close()
		s.logger.Info("wire: connection closed", zap.String("node_id", nodeID))
	}()

	listener := NewListener(ctx, nodeID, disp, s.logger, os.ReadFile)
	parser := sessionparser.New(s.cacheDir, nodeID, listener, s.logger)

	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if ferr := parser.Feed(buf[:n]); ferr != nil {
				s.logger.Warn("wire: feed error", zap.String("node_id", nodeID), zap.Error(ferr))
			}
		}
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func newNodeID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// dispatchJob is one unit of work handed from a connection's goroutine to
// the serialDispatcher's single loop goroutine.
type dispatchJob struct {
	ctx        context.Context
	nodeID     string
	req        transport.Request
	disconnect bool
	resultCh   chan error
	doneCh     chan struct{}
}

// serialDispatcher wraps a real Dispatcher behind one background loop
// goroutine, so every Handle/Disconnect call across every connection runs
// strictly one at a time — the only thing that makes the un-mutexed
// subsidx.Index (and everything downstream of it) safe to share.
type serialDispatcher struct {
	real   Dispatcher
	jobs   chan dispatchJob
	stopCh chan struct{}
}

func newSerialDispatcher(ctx context.Context, real Dispatcher) *serialDispatcher {
	sd := &serialDispatcher{real: real, jobs: make(chan dispatchJob), stopCh: make(chan struct{})}
	go sd.loop(ctx)
	return sd
}

var _ Dispatcher = (*serialDispatcher)(nil)

func (sd *serialDispatcher) loop(ctx context.Context) {
	defer close(sd.stopCh)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-sd.jobs:
			if j.disconnect {
				sd.real.Disconnect(j.nodeID)
				close(j.doneCh)
				continue
			}
			j.resultCh <- sd.real.Handle(j.ctx, j.nodeID, j.req)
		}
	}
}

// Handle enqueues req and blocks until the loop goroutine has run it,
// preserving the caller's expectation of a synchronous result.
func (sd *serialDispatcher) Handle(ctx context.Context, nodeID string, req transport.Request) error {
	resultCh := make(chan error, 1)
	select {
	case sd.jobs <- dispatchJob{ctx: ctx, nodeID: nodeID, req: req, resultCh: resultCh}:
	case <-sd.stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resultCh:
		return err
	case <-sd.stopCh:
		return nil
	}
}

// Disconnect enqueues a teardown job and blocks until the loop goroutine
// has released the node's index entries.
func (sd *serialDispatcher) Disconnect(nodeID string) {
	doneCh := make(chan struct{})
	select {
	case sd.jobs <- dispatchJob{nodeID: nodeID, disconnect: true, doneCh: doneCh}:
	case <-sd.stopCh:
		return
	}
	select {
	case <-doneCh:
	case <-sd.stopCh:
	}
}
