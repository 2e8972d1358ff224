package verify

import "github.com/janusbot/janus/internal/captcha"

// State is a session's position in the verification flow.
type State int

const (
	StateIdle State = iota
	StateMethodDispatch
	StateAwaitingResponse
	StateVerifying
	StateRetryPrompt
	StateSuccess
	StateTimeout
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMethodDispatch:
		return "method_dispatch"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateVerifying:
		return "verifying"
	case StateRetryPrompt:
		return "retry_prompt"
	case StateSuccess:
		return "success"
	case StateTimeout:
		return "timeout"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Session is one end-to-end verification attempt for a user in a guild.
// Sessions are ephemeral: created on trigger, destroyed at a terminal state.
type Session struct {
	UserID  uint64
	GuildID uint64
	// Manual marks command-triggered sessions, which get the already-verified
	// check and channel acknowledgements that join-triggered ones skip.
	Manual bool
	// InvokedChannelID is the channel the manual trigger came from, zero for
	// automatic triggers.
	InvokedChannelID uint64

	state     State
	attempts  int
	challenge *captcha.Challenge
	// destChannelID is where prompts go once the method is resolved.
	destChannelID uint64
}

// outcome is the result of one dispatched attempt.
type outcome int

const (
	// outcomeDone ends the session: success, decline, timeout, or a
	// reported-and-aborted condition.
	outcomeDone outcome = iota
	// outcomeRetry re-enters method dispatch with a fresh challenge.
	outcomeRetry
)
