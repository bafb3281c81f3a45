package supervisor

import "fmt"

// User-visible status strings, verbatim. The core itself
// never surfaces these; only the supervisor does.
func statusWaitingForNetwork() string { return "Waiting for network…" }

func statusWaitingForStream(port int) string {
	return fmt.Sprintf("Waiting for SRT stream on port %d…", port)
}

func statusStreaming(port int) string {
	return fmt.Sprintf("Streaming on port %d", port)
}

func statusPortBusy(port, try, max int) string {
	return fmt.Sprintf("Port %d in use — retry %d/%d", port, try, max)
}

func statusStreamStopped() string {
	return "SRT stream stopped, returning to listening mode"
}
