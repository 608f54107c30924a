package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"vmanga/internal/daemon"
	"vmanga/internal/logging"
)

// shutdownDelay lets the Stop reply reach the client before teardown.
const shutdownDelay = 100 * time.Millisecond

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path. shutdown, when
// non-nil, is invoked after a Stop request so the hosting process can exit.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, shutdown func()) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx, shutdown: shutdown}
	if err := rpcServer.RegisterName("VManga", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Serve accepts RPC connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go s.acceptLoop()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		switch {
		case err == nil:
		case errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil:
			return
		default:
			logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "CLI commands may fail to connect"),
				logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
			continue
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
		}()
	}
}

// Close stops the server, drops open connections and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may confuse the next start"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun vmanga stop"))
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
		return
	}
	delete(s.conns, c)
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

// call derives a per-request context tagged with a fresh correlation id so
// engine and gateway logs for one CLI command can be grouped.
func (s *service) call(method string) context.Context {
	ctx := logging.WithRequestID(s.ctx, uuid.NewString())
	logging.WithContext(ctx, s.logger).Debug("rpc call", logging.String("method", method))
	return ctx
}

// ack fills an acknowledgement for mutations that return nothing else.
func ack(resp *AckResponse, err error) error {
	if err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.call("Stop")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	if s.shutdown != nil {
		time.AfterFunc(shutdownDelay, s.shutdown)
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx).API()
	return nil
}

func (s *service) FileOpen(req FileRequest, resp *FileResponse) error {
	snap, err := s.daemon.OpenFile(s.call("FileOpen"), req.Path)
	resp.File = snap
	return err
}

func (s *service) FileClose(req FileRequest, resp *AckResponse) error {
	return ack(resp, s.daemon.CloseFile(s.call("FileClose"), req.Path))
}

func (s *service) FileList(_ FileListRequest, resp *FileListResponse) error {
	*resp = s.daemon.Files()
	return nil
}

func (s *service) FileShow(req FileRequest, resp *FileResponse) error {
	snap, err := s.daemon.Snapshot(req.Path)
	resp.File = snap
	return err
}

func (s *service) FileActivate(req FileRequest, resp *AckResponse) error {
	return ack(resp, s.daemon.Activate(s.call("FileActivate"), req.Path))
}

func (s *service) FileRescan(req FileRequest, resp *AckResponse) error {
	return ack(resp, s.daemon.Rescan(s.call("FileRescan"), req.Path))
}

func (s *service) JobRetry(req JobRequest, resp *AckResponse) error {
	return ack(resp, s.daemon.Retry(s.call("JobRetry"), req.Path, req.JobID))
}

func (s *service) JobResetIncomplete(req FileRequest, resp *JobResetIncompleteResponse) error {
	n, err := s.daemon.ResetIncomplete(s.call("JobResetIncomplete"), req.Path)
	resp.Reset = n
	return err
}

func (s *service) JobDeleteResult(req JobDeleteResultRequest, resp *AckResponse) error {
	return ack(resp, s.daemon.DeleteResult(s.call("JobDeleteResult"), req.Path, req.JobID, req.ResultPath))
}

func (s *service) JobLink(req JobLinkRequest, resp *AckResponse) error {
	return ack(resp, s.daemon.Link(s.call("JobLink"), req.Path, req.JobID, req.File))
}

func (s *service) WatchdogSweep(_ WatchdogSweepRequest, resp *WatchdogSweepResponse) error {
	res, err := s.daemon.Sweep(s.call("WatchdogSweep"))
	*resp = res
	return err
}

func (s *service) Stats(req StatsRequest, resp *StatsResponse) error {
	st, err := s.daemon.Stats(s.ctx, req.Days)
	*resp = st
	return err
}

func (s *service) StatsClear(req StatsClearRequest, resp *StatsClearResponse) error {
	n, err := s.daemon.ClearStats(s.call("StatsClear"), req.Day)
	resp.Removed = n
	return err
}

func (s *service) LicenseStatus(_ LicenseStatusRequest, resp *LicenseResponse) error {
	*resp = s.daemon.LicenseStatus()
	return nil
}

func (s *service) LicenseActivate(req LicenseActivateRequest, resp *LicenseResponse) error {
	s.call("LicenseActivate")
	st, err := s.daemon.ActivateLicense(req.Key)
	*resp = st
	return err
}

// TestNotification reports delivery failures in the response rather than as
// an RPC error so the CLI can print them verbatim.
func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.call("TestNotification"))
	resp.Sent = sent
	resp.Message = message
	if err != nil {
		resp.Message = fmt.Sprintf("%s: %v", message, err)
	}
	return nil
}
