package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cruciblehq/cruxenv/internal"
	"github.com/cruciblehq/cruxenv/internal/build"
	"github.com/cruciblehq/cruxenv/internal/protocol"
)

// Handles a build command.
//
// Builds run one at a time. A client disconnect cancels the build.
func (s *Server) handleBuild(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.BuildRequest](payload)
	if err != nil {
		s.fail(conn, err)
		return
	}
	if err := requireAbs("root", req.Root); err != nil {
		s.fail(conn, err)
		return
	}
	if err := requireAbs("output", req.Output); err != nil {
		s.fail(conn, err)
		return
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	select {
	case <-s.done:
		s.fail(conn, ErrShuttingDown)
		return
	default:
	}

	out, err := build.Provision(ctx, s.runtime, build.ProvisionOptions{
		Target: build.Target{
			Profile:        req.Profile,
			Root:           req.Root,
			RuntimeVersion: req.RuntimeVersion,
		},
		Output: req.Output,
		Tag:    req.Tag,
	})
	if err != nil {
		s.fail(conn, err)
		return
	}

	s.mu.Lock()
	s.builds++
	s.mu.Unlock()

	s.respond(conn, protocol.CmdOK, protocol.NewBuildResult(out))
}

// Handles a plan command.
func (s *Server) handlePlan(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.PlanRequest](payload)
	if err != nil {
		s.fail(conn, err)
		return
	}
	if err := requireAbs("root", req.Root); err != nil {
		s.fail(conn, err)
		return
	}

	_, p, err := build.Resolve(ctx, build.Target{
		Profile:        req.Profile,
		Root:           req.Root,
		RuntimeVersion: req.RuntimeVersion,
	})
	if err != nil {
		s.fail(conn, err)
		return
	}

	s.respond(conn, protocol.CmdOK, &protocol.PlanResult{Plan: p})
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	s.mu.Lock()
	builds := s.builds
	uptime := time.Since(s.startedAt).Truncate(time.Second)
	s.mu.Unlock()

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  uptime.String(),
		Builds:  builds,
	})
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	slog.Info("shutdown requested")

	go s.Stop()
}

// Logs err and reports it to the client.
func (s *Server) fail(conn net.Conn, err error) {
	slog.Error("command failed", "error", err)
	s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
}

// Paths in requests are resolved by the daemon, whose working directory is
// unrelated to the client's.
func requireAbs(field, p string) error {
	if !filepath.IsAbs(p) {
		return fmt.Errorf("%w: %s must be an absolute path, got %q", ErrRequest, field, p)
	}
	return nil
}
