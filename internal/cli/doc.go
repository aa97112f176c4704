// Parses flags and dispatches the cruxenv commands.
//
// Global flags:
//
//	-q, --quiet        Suppress informational output.
//	-v, --verbose      Attach source locations to log output.
//	-d, --debug        Enable debug output.
//	-p, --profile      Profile file merged over the built-in defaults.
//	-s, --socket       Daemon socket path.
//	    --containerd   Containerd socket address.
//
// Flags override build-time defaults set via linker flags. After parsing, the
// process logger is reinstalled to reflect the final level before the command
// runs. Commands print results to stdout and log to stderr.
package cli
