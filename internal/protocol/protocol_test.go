package protocol

import (
	"bufio"
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecode(t *testing.T) {
	req := &BuildRequest{Root: "/src", RuntimeVersion: "3.6", Output: "/out", Tag: "env:3.6"}

	data, err := Encode(CmdBuild, req)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	env, payload, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Command != CmdBuild || env.Version != Version {
		t.Errorf("envelope = %+v", env)
	}

	got, err := DecodePayload[BuildRequest](payload)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeNilPayload(t *testing.T) {
	data, err := Encode(CmdStatus, nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(data) != `{"version":1,"command":"status"}` {
		t.Errorf("Encode = %s", data)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := map[string]string{
		"malformed":     `{"version":`,
		"wrong version": `{"version":2,"command":"status"}`,
		"no command":    `{"version":1}`,
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := Decode([]byte(input)); !errors.Is(err, ErrProtocol) {
				t.Fatalf("expected ErrProtocol, got %v", err)
			}
		})
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	got, err := DecodePayload[StatusResult](nil)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if *got != (StatusResult{}) {
		t.Errorf("got %+v, want zero value", got)
	}
}

// Serves one connection with a fixed response line.
func serveOnce(t *testing.T, response string) string {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "d.sock")
	l, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := bufio.NewReader(conn).ReadBytes('\n'); err != nil {
			return
		}
		conn.Write([]byte(response + "\n"))
	}()

	return socket
}

func TestCall(t *testing.T) {
	socket := serveOnce(t, `{"version":1,"command":"ok","payload":{"running":true,"version":"1.0","builds":2}}`)

	var status StatusResult
	if err := Call(context.Background(), socket, CmdStatus, nil, &status); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !status.Running || status.Builds != 2 {
		t.Errorf("status = %+v", status)
	}
}

func TestCallRemoteError(t *testing.T) {
	socket := serveOnce(t, `{"version":1,"command":"error","payload":{"message":"no such profile"}}`)

	err := Call(context.Background(), socket, CmdBuild, &BuildRequest{}, nil)
	if !errors.Is(err, ErrRemote) || err.Error() != "daemon error: no such profile" {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestCallNoDaemon(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")

	if err := Call(context.Background(), socket, CmdStatus, nil, nil); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}
