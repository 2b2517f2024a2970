//go:build !windows

package pipe

import "fmt"

// Listen is unavailable outside Windows: there is no named-pipe
// namespace to bind. cmd/usnwatcher only calls this when --pipe is set,
// which platform_other.go's preflight check already rejects before
// reaching here; this stub exists so the command still builds on every
// platform.
func Listen(volumeLetter byte, override string) (*Broadcaster, error) {
	return nil, fmt.Errorf("named pipes are not supported on this platform")
}
