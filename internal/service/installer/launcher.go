package installer

import "fmt"

// DefaultInterpreter runs the installed script when a recipe names none.
const DefaultInterpreter = "/usr/bin/python3"

// LauncherMode is the permission mode of the generated launcher.
const LauncherMode = 0o755

// RenderLauncher produces the forwarding launcher: a shell stub that replaces
// its own process image with the interpreter running the installed script,
// passing all arguments through unmodified. No parsing, no logging.
func RenderLauncher(interpreter, target string) []byte {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}

	return []byte(fmt.Sprintf("#!/bin/sh\nexec %s %s \"$@\"\n", interpreter, target))
}
