// Package profile loads and validates provisioning profiles.
//
// A profile declares everything the planner needs to provision a Python test
// image: the base image template, the system packages, the workspace layout,
// the secondary toolchain, the dependency files, and the default entry
// command. Version-dependent stages carry a [Gate] that maps Runtime Versions
// to "run" or "skip" declaratively.
//
// Profiles are TOML. The built-in default is embedded in the binary; a user
// profile is merged over it key by key, and CRUXENV_* environment variables
// override both (for example CRUXENV_RUNTIME_DEFAULT=3.9).
//
//	p, source, err := profile.Load(ctx, profile.LoadOptions{Path: "cruxenv.toml"})
//	if err != nil {
//	    return err
//	}
package profile
