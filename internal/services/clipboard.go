package services

import (
	"os/exec"
	"strings"
)

// clipboardCommands are probed in order; the first one present wins.
// pbpaste covers macOS, the others the common Linux display servers.
var clipboardCommands = [][]string{
	{"pbpaste"},
	{"wl-paste", "--no-newline"},
	{"xclip", "-selection", "clipboard", "-o"},
}

// ReadClipboard returns the system clipboard contents, or "" when no
// clipboard tool is available or the clipboard is empty.
func ReadClipboard() string {
	for _, candidate := range clipboardCommands {
		if _, err := exec.LookPath(candidate[0]); err != nil {
			continue
		}
		out, err := exec.Command(candidate[0], candidate[1:]...).Output()
		if err != nil {
			continue
		}
		return strings.TrimSpace(string(out))
	}
	return ""
}
