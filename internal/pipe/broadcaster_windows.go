//go:build windows

package pipe

import (
	"fmt"

	"github.com/Microsoft/go-winio"
)

// Listen binds the named pipe for volumeLetter in the local-pipe
// namespace, e.g. \\.\pipe\usn-watcher-C. A non-empty override replaces
// the per-volume name outright, for operators standardizing on one
// fixed consumer-side pipe name across volumes.
func Listen(volumeLetter byte, override string) (*Broadcaster, error) {
	pipeName := override
	if pipeName == "" {
		pipeName = fmt.Sprintf(`\\.\pipe\usn-watcher-%c`, volumeLetter)
	}

	listener, err := winio.ListenPipe(pipeName, &winio.PipeConfig{
		MessageMode:      true,
		InputBufferSize:  4096,
		OutputBufferSize: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", pipeName, err)
	}

	return New(listener), nil
}
