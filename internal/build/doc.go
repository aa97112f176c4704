// Package build executes provisioning plans against a container runtime.
//
// A plan's active stages run in order inside one container started from the
// plan's base image. Run steps execute through the shell, copy steps stream
// the project tree in as tar, and fetch steps download on the host before
// placing the file in the container. Env and workdir steps accumulate and
// apply to every later step, and end up on the exported image together with
// the entry command. Skipped stages are logged and reported in the result.
//
// The first failing step aborts the build. The container is destroyed
// whether the build succeeds or not, and no image is exported on failure.
//
// Example usage:
//
//	result, err := build.Run(ctx, build.FromRuntime(rt), build.Options{
//	    Plan:       p,
//	    Root:       ".",
//	    IgnoreFile: ".dockerignore",
//	    Output:     "dist",
//	    Fetcher:    fetch.New(fetch.Options{Timeout: 5 * time.Minute}),
//	})
//	if err != nil {
//	    return err
//	}
package build
