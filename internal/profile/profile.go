package profile

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cruciblehq/cruxenv/internal/paths"
	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (

	// Prefix for environment variables overriding profile keys.
	envPrefix = "CRUXENV"

	// Profile looked up in the working directory when no path is given.
	LocalFile = "cruxenv.toml"

	// Placeholder substituted with the Runtime Version in the image template.
	VersionPlaceholder = "{version}"

	// Source reported when no profile file was merged.
	builtinSource = "(built-in)"
)

//go:embed default.toml
var defaultProfile []byte

// Provisioning profile for one Python test environment.
type Profile struct {
	Name           string         `mapstructure:"name"`
	Runtime        Runtime        `mapstructure:"runtime"`
	System         System         `mapstructure:"system"`
	Workspace      Workspace      `mapstructure:"workspace"`
	Toolchain      Toolchain      `mapstructure:"toolchain"`
	PackageManager PackageManager `mapstructure:"package_manager"`
	Dependencies   Dependencies   `mapstructure:"dependencies"`
	Entry          Entry          `mapstructure:"entry"`

	source   string         // File the profile was merged from, or "(built-in)".
	settings map[string]any // Effective key/value settings after merging.
}

// Base runtime selection.
type Runtime struct {
	Default    string   `mapstructure:"default"`     // Runtime Version used when none is given.
	Image      string   `mapstructure:"image"`       // Base image template containing {version}.
	SearchPath []string `mapstructure:"search_path"` // PATH of the base image, highest priority first.
}

// OS-level packages installed before anything else.
type System struct {
	Frontend  string   `mapstructure:"frontend"`   // Value of DEBIAN_FRONTEND in the image.
	Packages  []string `mapstructure:"packages"`   // Fixed package list.
	CacheDirs []string `mapstructure:"cache_dirs"` // Directories whose contents are removed afterwards.
}

// Where the project tree lands inside the image.
type Workspace struct {
	Dir        string `mapstructure:"dir"`         // Absolute working directory.
	IgnoreFile string `mapstructure:"ignore_file"` // Ignore file in the project root, honored when present.
}

// Secondary language toolchain installed from a fetched script.
type Toolchain struct {
	Name          string        `mapstructure:"name"`
	Version       string        `mapstructure:"version"`        // Exact release passed to the installer.
	InstallerURL  string        `mapstructure:"installer_url"`  // HTTPS endpoint serving the installer script.
	InstallerPath string        `mapstructure:"installer_path"` // Location of the script inside the image.
	BinDir        string        `mapstructure:"bin_dir"`        // Prepended to the search path after install.
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`  // Zero disables the timeout.
	When          Gate          `mapstructure:"when"`
}

// Primary language package manager.
type PackageManager struct {
	Python string `mapstructure:"python"` // Interpreter used to invoke "-m pip".
}

// Project dependency sets, all constrained by one lock file.
type Dependencies struct {
	Constraints     string `mapstructure:"constraints"`
	Requirements    string `mapstructure:"requirements"`
	DevRequirements string `mapstructure:"dev_requirements"`
	Editable        string `mapstructure:"editable"` // Project path installed in editable mode.
	When            Gate   `mapstructure:"when"`
}

// Default command recorded on the image.
type Entry struct {
	Command          []string `mapstructure:"command"`
	KnownSubcommands []string `mapstructure:"known_subcommands"` // Second tokens accepted without a warning.
}

// Controls where [Load] looks for a profile file.
type LoadOptions struct {
	Path string // Explicit profile path. Must exist when set.
	Dir  string // Directory searched for cruxenv.toml when Path is empty. Defaults to ".".
}

// Loads the effective profile.
//
// The embedded default is read first. When opts.Path is set that file is
// merged over it and must exist. Otherwise cruxenv.toml in opts.Dir is merged
// when present, falling back to the user profile under the XDG config
// directory. CRUXENV_* environment variables are applied last. The result is
// validated before it is returned.
func Load(ctx context.Context, opts LoadOptions) (*Profile, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrLoad, ctx.Err())
	default:
	}

	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(defaultProfile)); err != nil {
		return nil, fmt.Errorf("%w: built-in profile: %w", ErrLoad, err)
	}

	source, err := resolveSource(opts)
	if err != nil {
		return nil, err
	}

	if source != builtinSource {
		v.SetConfigFile(source)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoad, source, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var p Profile
	hooks := mapstructure.ComposeDecodeHookFunc(
		gateHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&p, viper.DecodeHook(hooks)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, source, err)
	}

	p.source = source
	p.settings = v.AllSettings()

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// Picks the profile file to merge, or the built-in marker when there is none.
func resolveSource(opts LoadOptions) (string, error) {
	if opts.Path != "" {
		if !isFile(opts.Path) {
			return "", fmt.Errorf("%w: %s", ErrProfileNotFound, opts.Path)
		}
		return opts.Path, nil
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	for _, candidate := range []string{filepath.Join(dir, LocalFile), paths.Profile()} {
		if isFile(candidate) {
			return candidate, nil
		}
	}

	return builtinSource, nil
}

// Whether name is an existing regular file.
func isFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

// Returns the file the profile was merged from, or "(built-in)".
func (p *Profile) Source() string {
	if p.source == "" {
		return builtinSource
	}
	return p.source
}

// Returns the base image reference for a Runtime Version.
//
// The version is substituted verbatim. No validation happens here; an
// unknown version surfaces when the runtime pulls the image.
func (p *Profile) Image(version string) string {
	return strings.ReplaceAll(p.Runtime.Image, VersionPlaceholder, version)
}

// Writes the effective settings as TOML.
//
// Profiles built in code rather than loaded have no settings and produce an
// empty document.
func (p *Profile) WriteTOML(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	if p.settings == nil {
		return enc.Encode(map[string]any{})
	}
	return enc.Encode(p.settings)
}

// Checks every field and reports all problems at once.
//
// The returned error wraps [ErrInvalidProfile] and lists each offending
// field.
func (p *Profile) Validate() error {
	var result *multierror.Error
	fail := func(field, format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
	}
	requireAbs := func(field, value string) {
		if !path.IsAbs(value) {
			fail(field, "must be an absolute path, got %q", value)
		}
	}
	requireSet := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			fail(field, "must be set")
		}
	}

	requireSet("runtime.default", p.Runtime.Default)
	if !strings.Contains(p.Runtime.Image, VersionPlaceholder) {
		fail("runtime.image", "must contain %s, got %q", VersionPlaceholder, p.Runtime.Image)
	}
	if len(p.Runtime.SearchPath) == 0 {
		fail("runtime.search_path", "must list at least one directory")
	}
	for _, dir := range p.Runtime.SearchPath {
		requireAbs("runtime.search_path", dir)
	}

	for _, pkg := range p.System.Packages {
		requireSet("system.packages", pkg)
	}
	for _, dir := range p.System.CacheDirs {
		requireAbs("system.cache_dirs", dir)
	}

	requireAbs("workspace.dir", p.Workspace.Dir)

	requireSet("toolchain.version", p.Toolchain.Version)
	if err := requireHTTPS(p.Toolchain.InstallerURL); err != nil {
		fail("toolchain.installer_url", "%v", err)
	}
	requireAbs("toolchain.installer_path", p.Toolchain.InstallerPath)
	requireAbs("toolchain.bin_dir", p.Toolchain.BinDir)
	if p.Toolchain.FetchTimeout < 0 {
		fail("toolchain.fetch_timeout", "must not be negative")
	}
	if err := p.Toolchain.When.Validate(); err != nil {
		fail("toolchain.when", "%v", err)
	}

	requireSet("package_manager.python", p.PackageManager.Python)

	requireSet("dependencies.constraints", p.Dependencies.Constraints)
	requireSet("dependencies.requirements", p.Dependencies.Requirements)
	requireSet("dependencies.dev_requirements", p.Dependencies.DevRequirements)
	requireSet("dependencies.editable", p.Dependencies.Editable)
	if err := p.Dependencies.When.Validate(); err != nil {
		fail("dependencies.when", "%v", err)
	}

	if len(p.Entry.Command) == 0 {
		fail("entry.command", "must not be empty")
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	return nil
}

// Rejects anything but an absolute https URL.
func requireHTTPS(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" || u.Host == "" {
		return errors.New("must be an https URL")
	}
	return nil
}
