package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pagecache/pagecache/pkg/allocator"
	"github.com/pagecache/pagecache/pkg/common/log"
	"github.com/pagecache/pagecache/pkg/stats"
	"github.com/pagecache/pagecache/pkg/telemetry"
)

// Handler is the allocator facade's surface as seen by the collaborator
// layer (spec.md §6). *allocator.Allocator satisfies it; tests can supply
// a fake.
type Handler interface {
	Insert(key string, value []byte, clientID string) error
	Update(key string, value []byte, clientID string) error
	Get(key string, clientID string) ([]byte, error)
	Delete(key string, clientID string) error
	Stats() stats.Snapshot
	Fragmentation() stats.Fragmentation
}

var _ Handler = (*allocator.Allocator)(nil)

// job is one parsed command waiting for a worker, paired with the
// connection it arrived on so the worker can write its reply. job values
// are copied across the work queue channel, so closeOnce is a pointer
// rather than an embedded sync.Once: copying an already-used sync.Once
// is undefined, but copying a pointer to one is always safe.
type job struct {
	cmd      *Command
	clientID string
	w        *bufio.Writer
	done     chan struct{}

	closeOnce *sync.Once
}

func newJob(cmd *Command, clientID string, w *bufio.Writer) job {
	return job{cmd: cmd, clientID: clientID, w: w, done: make(chan struct{}), closeOnce: &sync.Once{}}
}

// closeDone signals done exactly once. handle's normal-path defer and its
// recover-path defer both want to signal done, and a panic mid-handle
// means both run — closing an already-closed channel panics, which would
// otherwise clobber the original InvariantViolation before it re-panics.
func (j job) closeDone() {
	j.closeOnce.Do(func() { close(j.done) })
}

// Server accepts TCP connections, parses commands off each one, and
// dispatches them through a bounded queue to a fixed-size worker pool
// (spec.md §5's scheduling model: "parallel threads ... drain a shared
// work queue; the I/O/acceptor thread enqueues"). The lifecycle --
// Start/Serve/Stop/SetRequestHandler -- mirrors the teacher's
// GRPCServer, generalized from a single grpc.Server to a raw
// net.Listener accept loop.
type Server struct {
	addr        string
	workerCount int
	queueSize   int

	handler Handler
	logger  log.Logger
	tel     telemetry.Telemetry

	mu       sync.Mutex
	listener net.Listener
	queue    chan job
	wg       sync.WaitGroup
	started  bool
	closed   atomic.Bool
}

// NewServer constructs a Server listening on addr with workerCount
// workers draining a queue of queueSize pending commands.
func NewServer(addr string, workerCount, queueSize int, logger log.Logger) *Server {
	if logger == nil {
		logger = log.New()
	}
	return &Server{
		addr:        addr,
		workerCount: workerCount,
		queueSize:   queueSize,
		logger:      logger.WithField("component", "transport"),
		tel:         telemetry.NewNoop(),
	}
}

// SetRequestHandler attaches the allocator facade commands are dispatched
// to.
func (s *Server) SetRequestHandler(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// SetTelemetry attaches the telemetry.Telemetry instance request handling
// records request spans and latency against (SPEC_FULL.md §6-new.4).
// Defaults to a no-op so servers built without telemetry behave exactly
// as before.
func (s *Server) SetTelemetry(tel telemetry.Telemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tel != nil {
		s.tel = tel
	}
}

// Start binds the listener, launches the worker pool and the accept
// loop, and returns immediately.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("transport: server already started")
	}
	if s.handler == nil {
		return fmt.Errorf("transport: no request handler set")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.queue = make(chan job, s.queueSize)

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go s.acceptLoop()

	s.started = true
	s.logger.Info("listening on %s with %d workers", s.addr, s.workerCount)
	return nil
}

// Serve is Start followed by blocking until the server is stopped.
func (s *Server) Serve() error {
	if err := s.Start(); err != nil {
		return err
	}
	s.wg.Wait()
	return nil
}

// Stop closes the listener (no more accepts), signals should_stop, and
// waits for in-flight operations queued before the signal to complete
// (spec.md §5: "in-flight operations complete"). ctx bounds how long to
// wait before returning anyway.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.closed.Store(true)
	listener := s.listener
	queue := s.queue
	s.started = false
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	if queue != nil {
		close(queue)
	}

	stopped := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.logger.Warn("stop deadline exceeded, returning without full drain")
	}
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Error("accept: %v", err)
			continue
		}
		go s.readConn(conn)
	}
}

func (s *Server) readConn(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	clientID := conn.RemoteAddr().String()

	for {
		if s.closed.Load() {
			return
		}
		cmd, err := ReadCommand(r)
		if err != nil {
			WriteErr(w, err.Error())
			w.Flush()
			return
		}

		j := newJob(cmd, clientID, w)
		if !s.enqueue(j) {
			return
		}
		<-j.done
	}
}

// enqueue sends j to the work queue, returning false instead of
// panicking if Stop closed the queue concurrently with this send.
func (s *Server) enqueue(j job) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if s.closed.Load() {
		return false
	}
	s.queue <- j
	return true
}

func (s *Server) worker(id int) {
	defer s.wg.Done()
	for j := range s.queue {
		s.handle(j)
	}
}

// handle dispatches one command to the allocator and writes its reply.
// spec.md §7: InvariantViolation is a panic that must abort the process.
// It is recovered here only long enough to log it before being
// re-raised, matching SPEC_FULL.md §7's "recovered only at the top of
// the worker loop ... then re-panics."
func (s *Server) handle(j job) {
	start := time.Now()
	ctx, span := s.tel.StartSpan(context.Background(), "transport.handle",
		attribute.String(telemetry.AttrOperationName, string(j.cmd.Op)))
	defer func() {
		span.End()
		telemetry.RecordDuration(ctx, s.tel, "transport.request_duration", start,
			attribute.String(telemetry.AttrComponent, telemetry.ComponentTransport),
			attribute.String(telemetry.AttrOperationName, string(j.cmd.Op)))
	}()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("invariant violation handling %s %s: %v", j.cmd.Op, j.cmd.Key, r)
			j.closeDone()
			panic(r)
		}
	}()
	defer j.closeDone()
	defer j.w.Flush()

	switch j.cmd.Op {
	case OpInsert:
		err := s.handler.Insert(j.cmd.Key, j.cmd.Value, j.clientID)
		s.reply(j.w, err)
	case OpUpdate:
		err := s.handler.Update(j.cmd.Key, j.cmd.Value, j.clientID)
		s.reply(j.w, err)
	case OpGet:
		value, err := s.handler.Get(j.cmd.Key, j.clientID)
		if err != nil {
			s.reply(j.w, err)
			return
		}
		WriteOKValue(j.w, value)
	case OpDelete:
		err := s.handler.Delete(j.cmd.Key, j.clientID)
		s.reply(j.w, err)
	case OpStats:
		snap := s.handler.Stats()
		fmt.Fprintf(j.w, "+OK requests=%d hits=%d misses=%d evictions=%d adds=%d updates=%d deletes=%d coalesces=%d defragmentations=%d\r\n",
			snap.TotalRequests, snap.Hits, snap.Misses, snap.Evictions, snap.Adds, snap.Updates, snap.Deletes, snap.Coalesces, snap.Defragmentations)
	case OpFrag:
		frag := s.handler.Fragmentation()
		fmt.Fprintf(j.w, "+OK total_free=%d largest_free=%d num_blocks=%d frag_ratio=%.4f\r\n",
			frag.TotalFree, frag.LargestFree, frag.NumBlocks, frag.FragRatio)
	}
}

func (s *Server) reply(w *bufio.Writer, err error) {
	if err == nil {
		WriteOK(w)
		return
	}
	switch {
	case errors.Is(err, allocator.ErrNotFound):
		WriteErrCode(w, "NOT_FOUND")
	case errors.Is(err, allocator.ErrKeyExists):
		WriteErrCode(w, "KEY_EXISTS")
	case errors.Is(err, allocator.ErrOutOfSpace):
		WriteErrCode(w, "OUT_OF_SPACE")
	default:
		WriteErr(w, err.Error())
	}
}
