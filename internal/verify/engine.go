package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultResponseTimeout = 60 * time.Second
	defaultMaxAttempts     = 5
)

// Engine orchestrates verification sessions. It owns no Discord state itself;
// everything platform-facing goes through the injected collaborators, which
// keeps session logic independent of the gateway and testable without it.
type Engine struct {
	challenges Challenger
	configs    ConfigSource
	gateway    Gateway
	roles      RoleGrantor

	waiters *responseWaiters
	guard   *userGuard
	logger  *zap.Logger

	responseTimeout time.Duration
	maxAttempts     int
	debug           bool
	operatorID      uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithResponseTimeout overrides how long a session waits for a user response.
func WithResponseTimeout(d time.Duration) Option {
	return func(e *Engine) { e.responseTimeout = d }
}

// WithMaxAttempts overrides the captcha attempt cap.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) { e.maxAttempts = n }
}

// WithDebug makes unexpected session errors propagate to the caller instead
// of being swallowed after user notification.
func WithDebug(debug bool) Option {
	return func(e *Engine) { e.debug = debug }
}

// WithOperator sets the user that receives DM escalations for unexpected
// errors.
func WithOperator(userID uint64) Option {
	return func(e *Engine) { e.operatorID = userID }
}

// NewEngine creates a verification engine with the given collaborators.
func NewEngine(
	challenges Challenger,
	configs ConfigSource,
	gateway Gateway,
	roles RoleGrantor,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		challenges:      challenges,
		configs:         configs,
		gateway:         gateway,
		roles:           roles,
		waiters:         newResponseWaiters(),
		guard:           newUserGuard(),
		logger:          logger.Named("verify"),
		responseTimeout: defaultResponseTimeout,
		maxAttempts:     defaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Trigger starts a text-method verification session.
type Trigger struct {
	UserID  uint64
	GuildID uint64
	// ChannelID is the channel a manual trigger was invoked from, zero for
	// join-triggered sessions.
	ChannelID uint64
	Manual    bool
}

// ReactionTrigger is a reaction-added occurrence.
type ReactionTrigger struct {
	UserID    uint64
	GuildID   uint64
	ChannelID uint64
	MessageID uint64
	Emoji     EmojiRef
}

// StartSession runs one verification session for the trigger. It blocks until
// the session reaches a terminal state, so callers dispatch it on its own
// goroutine. The returned error is nil unless debug mode re-raises an
// unexpected failure.
func (e *Engine) StartSession(ctx context.Context, t Trigger) error {
	log := e.logger.With(
		zap.Uint64("user_id", t.UserID),
		zap.Uint64("guild_id", t.GuildID),
		zap.Bool("manual", t.Manual))

	cfg, err := e.configs.GuildConfig(ctx, t.GuildID)
	if err != nil {
		return e.escalate(ctx, &Session{UserID: t.UserID, GuildID: t.GuildID, InvokedChannelID: t.ChannelID}, classify(err))
	}

	// No verified role means verification is not set up: sessions are skipped
	// without issuing a challenge. Manual triggers get told why.
	if cfg == nil || cfg.VerifiedRoleID == 0 {
		if t.Manual && t.ChannelID != 0 {
			e.sendText(ctx, t.ChannelID, roleNotSetText)
		}

		log.Debug("Skipping session, verified role not configured")

		return nil
	}

	if t.Manual {
		member, err := e.gateway.Member(ctx, t.GuildID, t.UserID)
		if err != nil {
			return e.escalate(ctx, &Session{UserID: t.UserID, GuildID: t.GuildID, InvokedChannelID: t.ChannelID}, classify(err))
		}

		if member.HasRole(cfg.VerifiedRoleID) {
			e.sendText(ctx, t.ChannelID, alreadyVerifiedText)
			return nil
		}
	}

	if !e.guard.tryAcquire(t.UserID) {
		log.Info("Dropping trigger, session already active for user")
		return nil
	}
	defer e.guard.release(t.UserID)

	sess := &Session{
		UserID:           t.UserID,
		GuildID:          t.GuildID,
		Manual:           t.Manual,
		InvokedChannelID: t.ChannelID,
	}

	return e.run(ctx, sess, cfg)
}

// run drives the session through method dispatch until a terminal state,
// re-entering dispatch on user-requested retries up to the attempt cap.
func (e *Engine) run(ctx context.Context, sess *Session, cfg *GuildConfig) error {
	for sess.attempts = 1; ; sess.attempts++ {
		out, err := e.dispatch(ctx, sess, cfg)
		if err != nil {
			return e.escalate(ctx, sess, classify(err))
		}

		if out == outcomeDone {
			e.logger.Info("Session ended",
				zap.Uint64("user_id", sess.UserID),
				zap.Uint64("guild_id", sess.GuildID),
				zap.Stringer("state", sess.state),
				zap.Int("attempts", sess.attempts))

			return nil
		}

		if sess.attempts >= e.maxAttempts {
			sess.state = StateAbandoned
			e.sendText(ctx, sess.destChannelID, farewellText)
			e.logger.Info("Session abandoned, attempt cap reached",
				zap.Uint64("user_id", sess.UserID),
				zap.Uint64("guild_id", sess.GuildID),
				zap.Int("attempts", sess.attempts))

			return nil
		}
	}
}

// dispatch performs one full verification attempt: resolve the method, issue
// and display a challenge, wait for the answer, verify it.
func (e *Engine) dispatch(ctx context.Context, sess *Session, cfg *GuildConfig) (outcome, error) {
	sess.state = StateMethodDispatch

	var mention string

	switch cfg.Method {
	case MethodReaction:
		// Reaction verification is completed by HandleReaction; a manual
		// trigger only points the user at the prompt message.
		if sess.Manual && sess.InvokedChannelID != 0 {
			e.sendText(ctx, sess.InvokedChannelID, reactionPointer)
		}

		return outcomeDone, nil

	case MethodDM:
		if sess.Manual && sess.InvokedChannelID != 0 && sess.attempts == 1 {
			e.sendText(ctx, sess.InvokedChannelID, dmStartAck)
		}

		dm, err := e.gateway.CreateDM(ctx, sess.UserID)
		if err != nil {
			return outcomeDone, fmt.Errorf("failed to open DM channel: %w", err)
		}

		sess.destChannelID = dm

	case MethodChannel:
		if cfg.VerificationChannelID == 0 {
			if sess.InvokedChannelID != 0 {
				e.sendText(ctx, sess.InvokedChannelID, channelNotSetText)
			}

			e.logger.Warn("Aborting session, verification channel not configured",
				zap.Uint64("guild_id", sess.GuildID))

			return outcomeDone, nil
		}

		sess.destChannelID = cfg.VerificationChannelID
	}

	member, err := e.gateway.Member(ctx, sess.GuildID, sess.UserID)
	if err != nil {
		return outcomeDone, fmt.Errorf("failed to fetch member: %w", err)
	}

	guild, err := e.gateway.GuildInfo(ctx, sess.GuildID)
	if err != nil {
		return outcomeDone, fmt.Errorf("failed to fetch guild: %w", err)
	}

	// Guild channels are shared, so the prompt pings its target there.
	if cfg.Method == MethodChannel {
		mention = member.Mention()
	}

	challenge, err := e.challenges.Issue(ctx)
	if err != nil {
		return outcomeDone, fmt.Errorf("failed to issue challenge: %w", err)
	}

	sess.challenge = challenge

	template := cfg.StartMessage
	if template == "" {
		template = defaultStartMessage
	}

	err = e.gateway.Send(ctx, sess.destChannelID, Message{
		Mention:     mention,
		Title:       startTitle,
		Description: RenderPlaceholders(template, NewPlaceholderContext(guild, member)),
		Footer:      promptFooter,
		ImagePNG:    challenge.Image,
	})
	if err != nil {
		return outcomeDone, fmt.Errorf("failed to send challenge prompt: %w", err)
	}

	sess.state = StateAwaitingResponse

	answer, ok := e.awaitResponse(ctx, sess)
	if !ok {
		e.onTimeout(ctx, sess, mention)
		return outcomeDone, nil
	}

	sess.state = StateVerifying

	if e.challenges.Verify(ctx, challenge.ID, answer) {
		return outcomeDone, e.succeed(ctx, sess, cfg, guild, mention)
	}

	return e.retryPrompt(ctx, sess, mention)
}

// succeed grants the verified role and sends the success message to the
// session's destination channel.
func (e *Engine) succeed(ctx context.Context, sess *Session, cfg *GuildConfig, guild *GuildInfo, mention string) error {
	// Re-fetch so the grant works on a live member handle.
	member, err := e.gateway.Member(ctx, sess.GuildID, sess.UserID)
	if err != nil {
		return fmt.Errorf("failed to fetch member for grant: %w", err)
	}

	role, err := e.roles.Grant(ctx, sess.GuildID, sess.UserID, cfg.VerifiedRoleID)
	if err != nil {
		return fmt.Errorf("failed to grant verified role: %w", err)
	}

	template := cfg.SuccessMessage
	if template == "" {
		template = defaultSuccessMessage
	}

	err = e.gateway.Send(ctx, sess.destChannelID, Message{
		Mention:     mention,
		Title:       successTitle,
		Description: RenderPlaceholders(template, NewPlaceholderContext(guild, member).WithRole(role)),
	})
	if err != nil {
		return fmt.Errorf("failed to send success message: %w", err)
	}

	sess.state = StateSuccess

	return nil
}

// retryPrompt asks the user whether to try again after a wrong answer.
// Replies other than Y/N repeat the prompt, bounded by the attempt cap so a
// user replying garbage forever still terminates.
func (e *Engine) retryPrompt(ctx context.Context, sess *Session, mention string) (outcome, error) {
	sess.state = StateRetryPrompt

	for i := 0; i < e.maxAttempts; i++ {
		err := e.gateway.Send(ctx, sess.destChannelID, Message{
			Mention:     mention,
			Title:       failTitle,
			Description: failText,
			Footer:      failFooter,
		})
		if err != nil {
			return outcomeDone, fmt.Errorf("failed to send retry prompt: %w", err)
		}

		reply, ok := e.awaitResponse(ctx, sess)
		if !ok {
			e.onTimeout(ctx, sess, mention)
			return outcomeDone, nil
		}

		switch strings.ToUpper(strings.TrimSpace(reply)) {
		case "Y":
			return outcomeRetry, nil
		case "N":
			sess.state = StateAbandoned
			e.sendText(ctx, sess.destChannelID, farewellText)

			return outcomeDone, nil
		}
	}

	sess.state = StateAbandoned
	e.sendText(ctx, sess.destChannelID, farewellText)

	return outcomeDone, nil
}

// HandleReaction completes reaction-method verification. The reaction must
// match the guild's configured channel, message, and emoji exactly; anything
// else is logged and dropped with no user-visible effect.
func (e *Engine) HandleReaction(ctx context.Context, t ReactionTrigger) error {
	log := e.logger.With(
		zap.Uint64("user_id", t.UserID),
		zap.Uint64("guild_id", t.GuildID),
		zap.Uint64("channel_id", t.ChannelID),
		zap.Uint64("message_id", t.MessageID))

	cfg, err := e.configs.GuildConfig(ctx, t.GuildID)
	if err != nil {
		return e.escalate(ctx, &Session{UserID: t.UserID, GuildID: t.GuildID}, classify(err))
	}

	if cfg == nil || cfg.VerifiedRoleID == 0 {
		log.Debug("Ignoring reaction, verification not configured")
		return nil
	}

	if cfg.Method != MethodReaction {
		log.Debug("Ignoring reaction, method is not reaction")
		return nil
	}

	if cfg.ReactionChannelID == 0 || cfg.ReactionChannelID != t.ChannelID {
		log.Debug("Ignoring reaction, channel mismatch")
		return nil
	}

	if cfg.ReactionMessageID != t.MessageID {
		log.Debug("Ignoring reaction, message mismatch")
		return nil
	}

	if cfg.ReactionEmoji.IsZero() || !cfg.ReactionEmoji.Matches(t.Emoji) {
		log.Debug("Ignoring reaction, emoji mismatch")
		return nil
	}

	if !e.guard.tryAcquire(t.UserID) {
		log.Info("Dropping reaction, session already active for user")
		return nil
	}
	defer e.guard.release(t.UserID)

	sess := &Session{UserID: t.UserID, GuildID: t.GuildID}

	// Reacting to the configured message is itself the proof of completion;
	// success handling runs over the user's DM channel.
	dm, err := e.gateway.CreateDM(ctx, t.UserID)
	if err != nil {
		return e.escalate(ctx, sess, classify(fmt.Errorf("failed to open DM channel: %w", err)))
	}

	sess.destChannelID = dm

	guild, err := e.gateway.GuildInfo(ctx, t.GuildID)
	if err != nil {
		return e.escalate(ctx, sess, classify(fmt.Errorf("failed to fetch guild: %w", err)))
	}

	if err := e.succeed(ctx, sess, cfg, guild, ""); err != nil {
		return e.escalate(ctx, sess, classify(err))
	}

	log.Info("Reaction verification completed")

	return nil
}

// HandleMessage routes an incoming user message to the session waiting on it,
// if any. Reports whether a session consumed the message.
func (e *Engine) HandleMessage(userID, channelID uint64, content string) bool {
	return e.waiters.deliver(userID, channelID, content)
}

// awaitResponse suspends the session until the user replies in the
// destination channel or the response timeout elapses.
func (e *Engine) awaitResponse(ctx context.Context, sess *Session) (string, bool) {
	key := waitKey{userID: sess.UserID, channelID: sess.destChannelID}
	ch := e.waiters.register(key)

	defer e.waiters.unregister(key)

	timer := time.NewTimer(e.responseTimeout)
	defer timer.Stop()

	select {
	case content := <-ch:
		return content, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// onTimeout sends the single timeout notice and marks the session terminal.
func (e *Engine) onTimeout(ctx context.Context, sess *Session, mention string) {
	sess.state = StateTimeout

	err := e.gateway.Send(ctx, sess.destChannelID, Message{
		Mention:     mention,
		Title:       timeoutTitle,
		Description: timeoutText,
	})
	if err != nil {
		e.logger.Warn("Failed to send timeout notice",
			zap.Uint64("user_id", sess.UserID),
			zap.Error(err))
	}
}

// escalate handles a tagged session failure: the user gets a generic notice,
// the operator gets the details over DM, and in debug mode the error is
// returned for visibility. Configuration failures were already reported at
// the point of detection and stop here.
func (e *Engine) escalate(ctx context.Context, sess *Session, se *SessionError) error {
	if se.Kind == FailureConfiguration {
		e.logger.Warn("Session aborted on configuration failure",
			zap.Uint64("user_id", sess.UserID),
			zap.Uint64("guild_id", sess.GuildID),
			zap.Error(se))

		return nil
	}

	e.logger.Error("Session failed",
		zap.Uint64("user_id", sess.UserID),
		zap.Uint64("guild_id", sess.GuildID),
		zap.Stringer("kind", se.Kind),
		zap.Int("attempts", sess.attempts),
		zap.Error(se.Err))

	notifyChannel := sess.destChannelID
	if notifyChannel == 0 {
		notifyChannel = sess.InvokedChannelID
	}

	if notifyChannel != 0 {
		e.sendText(ctx, notifyChannel, unexpectedErrorText)
	}

	e.notifyOperator(ctx, sess, se)

	if e.debug {
		return se
	}

	return nil
}

// notifyOperator DMs the configured operator with the failure details and a
// snapshot of the session context.
func (e *Engine) notifyOperator(ctx context.Context, sess *Session, se *SessionError) {
	if e.operatorID == 0 {
		return
	}

	dm, err := e.gateway.CreateDM(ctx, e.operatorID)
	if err != nil {
		e.logger.Warn("Failed to open operator DM", zap.Error(err))
		return
	}

	detail := fmt.Sprintf(
		"Verification session failed.\n\n"+
			"**Kind**: `%s`\n**Error**: `%v`\n"+
			"**User**: `%d`\n**Guild**: `%d`\n"+
			"**State**: `%s`\n**Attempt**: `%d`",
		se.Kind, se.Err, sess.UserID, sess.GuildID, sess.state, sess.attempts)

	err = e.gateway.Send(ctx, dm, Message{Title: "Session Error", Description: detail})
	if err != nil {
		e.logger.Warn("Failed to notify operator", zap.Error(err))
	}
}

// sendText sends a plain text notice, logging send failures instead of
// failing the session over cosmetics.
func (e *Engine) sendText(ctx context.Context, channelID uint64, text string) {
	if channelID == 0 {
		return
	}

	if err := e.gateway.Send(ctx, channelID, Message{Description: text}); err != nil {
		e.logger.Warn("Failed to send notice",
			zap.Uint64("channel_id", channelID),
			zap.Error(err))
	}
}
