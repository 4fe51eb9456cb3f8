// Package clipboard provides platform-specific clipboard operations.
package clipboard

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// Tools returns the clipboard commands tried on goos, in order of preference.
func Tools(goos string) [][]string {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return [][]string{
			{"wl-copy"},                          // Wayland
			{"xclip", "-selection", "clipboard"}, // X11
			{"xsel", "--clipboard", "--input"},   // X11 alternative
		}
	case "darwin":
		return [][]string{{"pbcopy"}}
	case "windows":
		return [][]string{{"clip"}}
	default:
		return nil
	}
}

// CopyText copies plain text to the system clipboard using the first
// available tool.
func CopyText(text string) error {
	tools := Tools(runtime.GOOS)
	if len(tools) == 0 {
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	var tried []string
	for _, tool := range tools {
		tried = append(tried, tool[0])
		path, err := lookPath(tool[0])
		if err != nil {
			continue
		}
		cmd := exec.Command(path, tool[1:]...)
		cmd.Stdin = strings.NewReader(text)
		if err := cmd.Run(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no suitable clipboard tool found (tried: %s)", strings.Join(tried, ", "))
}
