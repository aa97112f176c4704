// Package server implements the cruxenv daemon.
//
// The daemon listens on a Unix domain socket for JSON-encoded commands.
// Each connection carries a single request-response exchange: the client
// sends a newline-delimited envelope, the server dispatches the command,
// and writes the result back before closing the connection.
//
// Supported commands build an environment image, resolve a plan without
// building, report daemon status, and shut the daemon down. Builds are
// delegated to the build package and run one at a time.
//
// Example usage:
//
//	srv, err := server.New(ctx, server.Config{
//	    Runtime: runtime.Options{Address: "/run/containerd/containerd.sock"},
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	<-srv.Done()
package server
