package visualization

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// OpenBrowser opens the page at rawURL in the user's default browser.
// Only http and https URLs are opened.
func OpenBrowser(rawURL string) error {
	cmd, err := browserCommand(runtime.GOOS, rawURL)
	if err != nil {
		return err
	}
	return cmd.Start()
}

// browserCommand builds the opener for goos: xdg-open on Linux, open on
// macOS, and cmd start on Windows.
func browserCommand(goos, rawURL string) (*exec.Cmd, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("refusing to open non-http URL %q", rawURL)
	}

	switch goos {
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", rawURL), nil
	case "darwin":
		return exec.Command("open", rawURL), nil
	case "windows":
		return exec.Command("cmd", "/c", "start", rawURL), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
