package installer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRenderLauncher checks the forwarding contract: exec semantics and
// unmodified argument pass-through.
func TestRenderLauncher(t *testing.T) {
	t.Parallel()

	content := string(RenderLauncher("/usr/bin/python3", "/usr/lib/gtk-phone-popup/gtk_popup.py"))

	require.True(t, strings.HasPrefix(content, "#!/bin/sh\n"))
	require.Contains(t, content, "exec /usr/bin/python3 /usr/lib/gtk-phone-popup/gtk_popup.py \"$@\"")

	// Nothing besides the shebang and the exec line.
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	require.Len(t, lines, 2)
}

// TestRenderLauncherDefaultInterpreter falls back when the recipe names none.
func TestRenderLauncherDefaultInterpreter(t *testing.T) {
	t.Parallel()

	content := string(RenderLauncher("", "/usr/lib/app/main.py"))
	require.Contains(t, content, "exec "+DefaultInterpreter+" /usr/lib/app/main.py \"$@\"")
}

// TestRecordPath joins the record location under the install root.
func TestRecordPath(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"/var/lib/popup-packager/gtk-phone-popup.json",
		RecordPath("/", "gtk-phone-popup"))
	require.Equal(t,
		"/stage/var/lib/popup-packager/gtk-phone-popup.json",
		RecordPath("/stage", "gtk-phone-popup"))
}
