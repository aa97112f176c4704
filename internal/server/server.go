package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cruciblehq/cruxenv/internal/paths"
	"github.com/cruciblehq/cruxenv/internal/protocol"
	"github.com/cruciblehq/cruxenv/internal/runtime"
)

const (

	// Group that may submit builds. Applied only when it exists on the host.
	socketGroup = "cruxenv"

	// Socket mode. Connecting needs write permission.
	socketMode = 0660
)

// Daemon settings.
type Config struct {
	SocketPath string          // Override for the Unix socket path. Empty uses the default.
	Runtime    runtime.Options // Containerd connection.
}

// Serves build and plan requests for local clients.
type Server struct {
	socketPath string           // Socket the daemon serves on.
	runtime    *runtime.Runtime // Shared by every build. Nil in plan-only tests.
	listener   net.Listener     // Set by Start.
	startedAt  time.Time        // Reported as uptime.
	builds     int              // Completed builds since start.
	done       chan struct{}    // Closed on shutdown.
	stopOnce   sync.Once        // Guards shutdown.
	buildMu    sync.Mutex       // Serializes builds; containers are keyed by runtime version.
	mu         sync.Mutex       // Protects builds and startedAt.
}

// Creates a new server connected to containerd.
//
// The socket is not opened until [Server.Start] is called.
func New(ctx context.Context, cfg Config) (*Server, error) {
	rt, err := runtime.New(ctx, cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}
	return newServer(cfg.SocketPath, rt), nil
}

func newServer(socketPath string, rt *runtime.Runtime) *Server {
	if socketPath == "" {
		socketPath = paths.Socket()
	}
	return &Server{
		socketPath: socketPath,
		runtime:    rt,
		done:       make(chan struct{}),
	}
}

// Starts serving in the background and records the PID.
func (s *Server) Start() error {
	listener, err := listen(s.socketPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.startedAt = time.Now()
	s.mu.Unlock()

	if err := writePID(); err != nil {
		slog.Warn("pid file not written", "path", paths.PIDFile(), "error", err)
	}

	slog.Info("daemon ready", "socket", s.socketPath, "pid", os.Getpid())

	go s.accept()
	return nil
}

// Binds the socket, replacing one left behind by a daemon that did not exit
// cleanly.
func listen(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrServer, socketPath, err)
	}

	if err := setSocketPermissions(socketPath); err != nil {
		listener.Close()
		return nil, err
	}

	return listener, nil
}

// Applies the socket mode and, when the group exists, its ownership.
func setSocketPermissions(socketPath string) error {
	if err := os.Chmod(socketPath, socketMode); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ErrServer, socketPath, err)
	}

	g, err := user.LookupGroup(socketGroup)
	if err != nil {
		slog.Debug("no socket group, owner-only access", "group", socketGroup)
		return nil
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return nil
	}
	if err := os.Chown(socketPath, -1, gid); err != nil {
		slog.Warn("socket group not applied", "group", socketGroup, "error", err)
	}
	return nil
}

// Stops accepting requests, waits for a running build, then releases the
// runtime and removes the socket and PID file. Later calls do nothing.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()

		if listener != nil {
			listener.Close()
		}

		// Wait for an in-flight build to release the runtime.
		s.buildMu.Lock()
		if s.runtime != nil {
			s.runtime.Close()
		}
		s.buildMu.Unlock()

		os.Remove(s.socketPath)
		os.Remove(paths.PIDFile())
	})
	return nil
}

// Returns a channel closed when the server stops.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Serves each connection on its own goroutine until Stop.
func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				slog.Error("accept failed", "error", err)
				continue
			}
		}

		go s.handle(conn)
	}
}

// Serves one request on conn.
//
// A connection carries exactly one envelope each way. The request context
// ends when the client hangs up, which cancels a build in progress.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)

	line, err := br.ReadBytes('\n')
	if err != nil {
		slog.Error("request not read", "error", err)
		return
	}

	env, payload, err := protocol.Decode(line)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	slog.Info("request", "command", env.Command, "version", env.Version)

	ctx, cancel := contextWithDisconnect(context.Background(), br)
	defer cancel()

	s.dispatch(ctx, conn, env.Command, payload)
}

// Calls the handler for cmd.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, cmd protocol.Command, payload json.RawMessage) {
	switch cmd {
	case protocol.CmdBuild:
		s.handleBuild(ctx, conn, payload)
	case protocol.CmdPlan:
		s.handlePlan(ctx, conn, payload)
	case protocol.CmdStatus:
		s.handleStatus(conn)
	case protocol.CmdShutdown:
		s.handleShutdown(conn)
	default:
		s.fail(conn, fmt.Errorf("%w: unknown command %q", ErrRequest, cmd))
	}
}

// Sends the reply envelope.
func (s *Server) respond(conn net.Conn, cmd protocol.Command, payload any) {
	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		slog.Error("reply not encoded", "command", cmd, "error", err)
		return
	}
	conn.Write(append(data, '\n'))
}

// Records the daemon PID for service managers.
func writePID() error {
	if err := os.MkdirAll(paths.Runtime(), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(paths.PIDFile(), []byte(strconv.Itoa(os.Getpid())), paths.DefaultFileMode)
}

// Returns a context cancelled once r hits EOF or an error.
//
// Clients send nothing after the request line, so any read return means
// the peer went away. The cancel func must be called.
func contextWithDisconnect(parent context.Context, r io.Reader) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		defer cancel()
		io.Copy(io.Discard, r)
	}()
	return ctx, cancel
}
