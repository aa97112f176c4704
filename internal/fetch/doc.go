// Package fetch downloads build inputs over HTTPS on the host.
//
// The client refuses anything but https URLs and negotiates TLS 1.2 or
// later. Downloads are not retried; a failed fetch fails the build.
package fetch
