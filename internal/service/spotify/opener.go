package spotify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Opener hands a URL to whatever the host uses to open links.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// BrowserOpener launches the system browser.
type BrowserOpener struct{}

func (BrowserOpener) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	// The browser outlives us; only reap the launcher.
	go func() { _ = cmd.Wait() }()
	return nil
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) error

func (f OpenerFunc) Open(ctx context.Context, url string) error {
	return f(ctx, url)
}
