package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	programName = "cruxenv"

	// File name of the user-level provisioning profile.
	profileName = "profile.toml"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/cruxenv or /run/user/<uid>/cruxenv
//	macOS:   ~/Library/Caches/cruxenv/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, programName)
	}
	return filepath.Join(xdg.CacheHome, programName, "run")
}

// Default path to the daemon's Unix domain socket.
func Socket() string {
	return filepath.Join(Runtime(), programName+".sock")
}

// Default path to the daemon's PID file.
func PIDFile() string {
	return filepath.Join(Runtime(), programName+".pid")
}

// Path to the user-level profile merged over the built-in defaults.
//
//	Linux:   $XDG_CONFIG_HOME/cruxenv/profile.toml
//	macOS:   ~/Library/Application Support/cruxenv/profile.toml
func Profile() string {
	return filepath.Join(xdg.ConfigHome, programName, profileName)
}

// Default directory for exported image archives.
//
//	Linux:   $XDG_DATA_HOME/cruxenv/images
func Images() string {
	return filepath.Join(xdg.DataHome, programName, "images")
}
