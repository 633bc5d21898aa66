package platform

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"
)

// BrowserOpener opens URLs in the user's default browser.
type BrowserOpener struct {
	log *zap.Logger
}

func NewBrowserOpener(log *zap.Logger) *BrowserOpener {
	return &BrowserOpener{log: log}
}

func (o *BrowserOpener) OpenWindow(_ context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
	o.log.Info("opening window", zap.String("url", url))
	return cmd.Start()
}
