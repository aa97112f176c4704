// Package runtime manages containers backed by containerd.
//
// A [Runtime] connects to a containerd daemon, pulls base images for a
// single platform, and creates containers with fresh snapshots. Each
// [Container] wraps a long-running task that commands are executed in and
// tar streams are extracted into. When provisioning is done the container
// filesystem is committed as one layer and exported as an OCI archive with
// the command, environment, and working directory recorded on the image
// config.
//
// Exported archives can be imported back under a tag and started with
// [Runtime.Run], whose exit code is surfaced as an [*ExitError].
//
// Example usage:
//
//	rt, err := runtime.New(ctx, runtime.Options{Address: runtime.DefaultAddress})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ctr, err := rt.StartContainer(ctx, "python:3.8", "cruxenv-build")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	result, err := ctr.Exec(ctx, "/bin/sh", "echo hello", nil, "")
//	if err != nil {
//	    return err
//	}
//
//	_, err = ctr.Export(ctx, "output", runtime.ImageConfig{Cmd: []string{"stestr", "run"}})
package runtime
