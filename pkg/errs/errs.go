// Package errs defines the sentinel errors for the call bridge's failure
// kinds. Callers wrap these with fmt.Errorf("%w: ...") at the point of
// failure so errors.Is keeps working through the wrap.
package errs

import "errors"

var (
	// ErrTransport covers a closed WebSocket or malformed control frame.
	// Fatal to the call: the transport adapter tears down both workers and
	// releases the rate-limiter slot.
	ErrTransport = errors.New("transport error")

	// ErrCodec marks an impossible-under-correct-input codec failure. The
	// offending frame is logged and dropped; the call continues.
	ErrCodec = errors.New("codec error")

	// ErrCollaboratorRateLimit is returned by a provider when the vendor
	// rate-limits the call. Logged at warn; no audio emitted for the turn.
	ErrCollaboratorRateLimit = errors.New("collaborator rate limited")

	// ErrCollaboratorTransport covers any other STT/LLM/TTS network or
	// protocol failure.
	ErrCollaboratorTransport = errors.New("collaborator transport error")

	// ErrLLMParse marks a malformed JSON reply from the LLM collaborator.
	// Treated the same as ErrCollaboratorTransport: fall back to the canned
	// apology reply.
	ErrLLMParse = errors.New("llm reply parse error")

	// ErrAdmissionDenied names a call the rate limiter refused to admit.
	// Limiter.TryAdmit itself reports a denial as a false result.
	ErrAdmissionDenied = errors.New("admission denied")

	// ErrMaxDuration marks a clean termination triggered by
	// MAX_CALL_DURATION_S.
	ErrMaxDuration = errors.New("max call duration reached")
)
