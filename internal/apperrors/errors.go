// Package apperrors collects the typed error taxonomy of §7: the kinds of
// failure that cross a process boundary (HTTP request, orchestrator command,
// notify call) and need a stable Go type so callers can branch on them.
// onion.FrameError and onion.CryptoError cover the codec/crypto layer and
// live in internal/onion since they're purely local to that package.
package apperrors

// BadRequestError is a missing or malformed JSON body at a directory
// endpoint (§7): surfaced as HTTP 400 with {"error": ...}.
type BadRequestError struct {
	Msg string
}

func (e *BadRequestError) Error() string { return e.Msg }

// OrchestratorError is a failed launch or teardown command (§7). /route
// fails with 400 if a launch fails; teardown failures are logged and
// swallowed per §7's propagation policy.
type OrchestratorError struct {
	Msg string
}

func (e *OrchestratorError) Error() string { return e.Msg }

// UpstreamError is a failed forward POST/GET to the next hop or destination
// (§7). Hops do not retry on this error.
type UpstreamError struct {
	Msg string
}

func (e *UpstreamError) Error() string { return e.Msg }

// NotifyTransportError is a failed POST to the directory's /notify (§7).
// Logged and swallowed; it never aborts forwarding.
type NotifyTransportError struct {
	Msg string
}

func (e *NotifyTransportError) Error() string { return e.Msg }
