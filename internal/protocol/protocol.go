package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/cruciblehq/cruxenv/internal/build"
	"github.com/cruciblehq/cruxenv/internal/plan"
)

// Protocol version written on every envelope.
const Version = 1

var (
	ErrProtocol = errors.New("protocol error")
	ErrRemote   = errors.New("daemon error")
)

// Identifies a request or response type.
type Command string

const (
	CmdBuild    Command = "build"
	CmdPlan     Command = "plan"
	CmdStatus   Command = "status"
	CmdShutdown Command = "shutdown"
	CmdOK       Command = "ok"
	CmdError    Command = "error"
)

// Wire wrapper for every message.
type Envelope struct {
	Version int             `json:"version"`
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Asks the daemon to build an environment image.
type BuildRequest struct {
	Profile        string `json:"profile,omitempty"`         // Profile file. Empty selects the default lookup.
	Root           string `json:"root"`                      // Absolute project root.
	RuntimeVersion string `json:"runtime_version,omitempty"` // Empty selects the profile default.
	Output         string `json:"output"`                    // Absolute output directory.
	Tag            string `json:"tag,omitempty"`             // Imports the exported image under this tag when set.
}

// Outcome of a build.
type BuildResult struct {
	Output         string            `json:"output"`
	Archive        string            `json:"archive"`
	Size           int64             `json:"size"`
	Digest         string            `json:"digest,omitempty"`
	Tag            string            `json:"tag,omitempty"`
	RuntimeVersion string            `json:"runtime_version"`
	Skipped        map[string]string `json:"skipped,omitempty"` // Skipped stages and their reasons.
}

// Returns the wire form of a finished build.
func NewBuildResult(p *build.Provisioned) *BuildResult {
	skipped := make(map[string]string, len(p.Skipped))
	for kind, reason := range p.Skipped {
		skipped[string(kind)] = reason
	}

	return &BuildResult{
		Output:         p.Output,
		Archive:        p.Archive.Path,
		Size:           p.Archive.Size,
		Digest:         p.Archive.Digest.String(),
		Tag:            p.Tag,
		RuntimeVersion: p.Plan.RuntimeVersion,
		Skipped:        skipped,
	}
}

// Asks the daemon to resolve a plan without building it.
type PlanRequest struct {
	Profile        string `json:"profile,omitempty"`
	Root           string `json:"root"`
	RuntimeVersion string `json:"runtime_version,omitempty"`
}

// Resolved plan.
type PlanResult struct {
	Plan *plan.Plan `json:"plan"`
}

// Daemon state.
type StatusResult struct {
	Running bool   `json:"running"`
	Version string `json:"version"`
	Pid     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Builds  int    `json:"builds"`
}

// Failure description returned with [CmdError].
type ErrorResult struct {
	Message string `json:"message"`
}

// Encodes a command and payload into an envelope. A nil payload is omitted.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Version: Version, Command: cmd}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		env.Payload = raw
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return data, nil
}

// Decodes an envelope, returning it and its raw payload.
//
// Envelopes with a different protocol version or without a command are
// rejected.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if env.Version != Version {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrProtocol, env.Version)
	}
	if env.Command == "" {
		return nil, nil, fmt.Errorf("%w: missing command", ErrProtocol)
	}
	return &env, env.Payload, nil
}

// Decodes a payload into T. An empty payload yields the zero value.
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	var v T
	if len(payload) == 0 {
		return &v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return &v, nil
}

// Sends one request to the daemon at socketPath and decodes the response
// into result.
//
// An error response is returned as an error wrapping [ErrRemote]. result may
// be nil when the response payload is not needed.
func Call(ctx context.Context, socketPath string, cmd Command, payload, result any) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	data, err := Encode(cmd, payload)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	env, raw, err := Decode(line)
	if err != nil {
		return err
	}

	switch env.Command {
	case CmdOK:
		if result == nil || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		return nil
	case CmdError:
		e, err := DecodePayload[ErrorResult](raw)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrRemote, e.Message)
	}
	return fmt.Errorf("%w: unexpected response %q", ErrProtocol, env.Command)
}
