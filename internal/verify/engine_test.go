package verify_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/janusbot/janus/internal/captcha"
	"github.com/janusbot/janus/internal/verify"
)

const (
	testUserID  = uint64(100)
	testGuildID = uint64(200)
	testRoleID  = uint64(300)

	// CreateDM returns dmChannelBase+userID so tests can predict DM channels.
	dmChannelBase = uint64(9000)
)

type fakeChallenger struct {
	mu      sync.Mutex
	issued  int
	correct string
}

func (f *fakeChallenger) Issue(_ context.Context) (*captcha.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.issued++

	return &captcha.Challenge{
		ID:       fmt.Sprintf("challenge-%d", f.issued),
		Image:    []byte{0x89, 0x50, 0x4e, 0x47},
		IssuedAt: time.Now(),
	}, nil
}

func (f *fakeChallenger) Verify(_ context.Context, _, answer string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return answer == f.correct
}

func (f *fakeChallenger) issueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.issued
}

type fakeConfigs struct {
	configs map[uint64]*verify.GuildConfig
}

func (f *fakeConfigs) GuildConfig(_ context.Context, guildID uint64) (*verify.GuildConfig, error) {
	return f.configs[guildID], nil
}

type sentMessage struct {
	channelID uint64
	msg       verify.Message
}

type fakeGateway struct {
	mu      sync.Mutex
	guild   verify.GuildInfo
	members map[uint64]verify.MemberInfo
	sent    []sentMessage
}

func (f *fakeGateway) GuildInfo(_ context.Context, _ uint64) (*verify.GuildInfo, error) {
	guild := f.guild
	return &guild, nil
}

func (f *fakeGateway) Member(_ context.Context, _, userID uint64) (*verify.MemberInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	member := f.members[userID]

	return &member, nil
}

func (f *fakeGateway) CreateDM(_ context.Context, userID uint64) (uint64, error) {
	return dmChannelBase + userID, nil
}

func (f *fakeGateway) Send(_ context.Context, channelID uint64, msg verify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, sentMessage{channelID: channelID, msg: msg})

	return nil
}

func (f *fakeGateway) sends() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]sentMessage(nil), f.sent...)
}

type grantCall struct {
	guildID, userID, roleID uint64
}

type fakeRoles struct {
	mu     sync.Mutex
	grants []grantCall
}

func (f *fakeRoles) Grant(_ context.Context, guildID, userID, roleID uint64) (*verify.RoleInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.grants = append(f.grants, grantCall{guildID: guildID, userID: userID, roleID: roleID})

	return &verify.RoleInfo{ID: roleID, Name: "Verified"}, nil
}

func (f *fakeRoles) grantCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.grants)
}

type testFixture struct {
	engine     *verify.Engine
	challenger *fakeChallenger
	gateway    *fakeGateway
	roles      *fakeRoles
}

func setupTest(t *testing.T, cfg *verify.GuildConfig, opts ...verify.Option) *testFixture {
	t.Helper()

	challenger := &fakeChallenger{correct: "123456"}
	gateway := &fakeGateway{
		guild: verify.GuildInfo{ID: testGuildID, Name: "Test Guild", TotalMembers: 10, HumanMembers: 8},
		members: map[uint64]verify.MemberInfo{
			testUserID: {ID: testUserID, Username: "alice", Discriminator: "0"},
		},
	}
	roles := &fakeRoles{}

	configs := &fakeConfigs{configs: map[uint64]*verify.GuildConfig{}}
	if cfg != nil {
		configs.configs[cfg.GuildID] = cfg
	}

	engine := verify.NewEngine(challenger, configs, gateway, roles, zap.NewNop(), opts...)

	return &testFixture{
		engine:     engine,
		challenger: challenger,
		gateway:    gateway,
		roles:      roles,
	}
}

// respond waits for the engine to register a waiter for the channel and
// delivers the reply.
func respond(t *testing.T, engine *verify.Engine, userID, channelID uint64, content string) {
	t.Helper()

	require.Eventually(t, func() bool {
		return engine.HandleMessage(userID, channelID, content)
	}, 2*time.Second, 2*time.Millisecond)
}

// startSession runs a session on its own goroutine and returns a channel that
// yields its result.
func startSession(fx *testFixture, trigger verify.Trigger) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- fx.engine.StartSession(context.Background(), trigger)
	}()

	return done
}

func dmConfig() *verify.GuildConfig {
	return &verify.GuildConfig{
		GuildID:        testGuildID,
		Method:         verify.MethodDM,
		VerifiedRoleID: testRoleID,
	}
}

func TestStartSessionDMSuccess(t *testing.T) {
	t.Parallel()

	fx := setupTest(t, dmConfig())
	dm := dmChannelBase + testUserID

	done := startSession(fx, verify.Trigger{UserID: testUserID, GuildID: testGuildID})
	respond(t, fx.engine, testUserID, dm, "123456")
	require.NoError(t, <-done)

	sends := fx.gateway.sends()
	require.Len(t, sends, 2)

	prompt := sends[0]
	assert.Equal(t, dm, prompt.channelID)
	assert.Equal(t, "Verification Required", prompt.msg.Title)
	assert.NotNil(t, prompt.msg.ImagePNG)
	assert.Contains(t, prompt.msg.Description, "requires manual verification")
	assert.Empty(t, prompt.msg.Mention)

	success := sends[1]
	assert.Equal(t, dm, success.channelID)
	assert.Equal(t, "Verification Successful", success.msg.Title)
	assert.Contains(t, success.msg.Description, "`Verified`")

	require.Equal(t, 1, fx.roles.grantCount())
	assert.Equal(t, grantCall{guildID: testGuildID, userID: testUserID, roleID: testRoleID}, fx.roles.grants[0])
	assert.Equal(t, 1, fx.challenger.issueCount())
}

func TestStartSessionChannelMethod(t *testing.T) {
	t.Parallel()

	channelID := uint64(555)
	cfg := dmConfig()
	cfg.Method = verify.MethodChannel
	cfg.VerificationChannelID = channelID

	fx := setupTest(t, cfg)

	done := startSession(fx, verify.Trigger{UserID: testUserID, GuildID: testGuildID})
	respond(t, fx.engine, testUserID, channelID, "123456")
	require.NoError(t, <-done)

	sends := fx.gateway.sends()
	require.Len(t, sends, 2)

	// Guild channels are shared so both messages ping the member.
	assert.Equal(t, channelID, sends[0].channelID)
	assert.Equal(t, "<@100>", sends[0].msg.Mention)
	assert.Equal(t, "<@100>", sends[1].msg.Mention)
	assert.Equal(t, 1, fx.roles.grantCount())
}

func TestStartSessionChannelNotConfigured(t *testing.T) {
	t.Parallel()

	invoked := uint64(777)
	cfg := dmConfig()
	cfg.Method = verify.MethodChannel

	fx := setupTest(t, cfg)

	err := fx.engine.StartSession(context.Background(), verify.Trigger{
		UserID:    testUserID,
		GuildID:   testGuildID,
		ChannelID: invoked,
		Manual:    true,
	})
	require.NoError(t, err)

	sends := fx.gateway.sends()
	require.Len(t, sends, 1)
	assert.Equal(t, invoked, sends[0].channelID)
	assert.Contains(t, sends[0].msg.Description, "Verification channel is not configured")
	assert.Zero(t, fx.challenger.issueCount())
}

func TestStartSessionRoleNotConfigured(t *testing.T) {
	t.Parallel()

	invoked := uint64(777)
	cfg := dmConfig()
	cfg.VerifiedRoleID = 0

	fx := setupTest(t, cfg)

	err := fx.engine.StartSession(context.Background(), verify.Trigger{
		UserID:    testUserID,
		GuildID:   testGuildID,
		ChannelID: invoked,
		Manual:    true,
	})
	require.NoError(t, err)

	sends := fx.gateway.sends()
	require.Len(t, sends, 1)
	assert.Contains(t, sends[0].msg.Description, "Verified role is not set")
	assert.Zero(t, fx.challenger.issueCount())
	assert.Zero(t, fx.roles.grantCount())
}

func TestStartSessionRoleNotConfiguredAutoIsSilent(t *testing.T) {
	t.Parallel()

	cfg := dmConfig()
	cfg.VerifiedRoleID = 0

	fx := setupTest(t, cfg)

	err := fx.engine.StartSession(context.Background(), verify.Trigger{UserID: testUserID, GuildID: testGuildID})
	require.NoError(t, err)
	assert.Empty(t, fx.gateway.sends())
}

func TestStartSessionUnknownGuild(t *testing.T) {
	t.Parallel()

	fx := setupTest(t, nil)

	err := fx.engine.StartSession(context.Background(), verify.Trigger{UserID: testUserID, GuildID: testGuildID})
	require.NoError(t, err)
	assert.Empty(t, fx.gateway.sends())
	assert.Zero(t, fx.challenger.issueCount())
}

func TestStartSessionAlreadyVerified(t *testing.T) {
	t.Parallel()

	invoked := uint64(777)
	fx := setupTest(t, dmConfig())
	fx.gateway.members[testUserID] = verify.MemberInfo{
		ID:       testUserID,
		Username: "alice",
		RoleIDs:  []uint64{testRoleID},
	}

	err := fx.engine.StartSession(context.Background(), verify.Trigger{
		UserID:    testUserID,
		GuildID:   testGuildID,
		ChannelID: invoked,
		Manual:    true,
	})
	require.NoError(t, err)

	sends := fx.gateway.sends()
	require.Len(t, sends, 1)
	assert.Contains(t, sends[0].msg.Description, "already verified")
	assert.Zero(t, fx.challenger.issueCount())
	assert.Zero(t, fx.roles.grantCount())
}

func TestStartSessionTimeout(t *testing.T) {
	t.Parallel()

	fx := setupTest(t, dmConfig(), verify.WithResponseTimeout(30*time.Millisecond))
	dm := dmChannelBase + testUserID

	err := fx.engine.StartSession(context.Background(), verify.Trigger{UserID: testUserID, GuildID: testGuildID})
	require.NoError(t, err)

	sends := fx.gateway.sends()
	require.Len(t, sends, 2)
	assert.Equal(t, dm, sends[1].channelID)
	assert.Equal(t, "Verification Timed Out", sends[1].msg.Title)
	assert.Zero(t, fx.roles.grantCount())
}

func TestStartSessionWrongThenRetrySucceeds(t *testing.T) {
	t.Parallel()

	fx := setupTest(t, dmConfig())
	dm := dmChannelBase + testUserID

	done := startSession(fx, verify.Trigger{UserID: testUserID, GuildID: testGuildID})
	respond(t, fx.engine, testUserID, dm, "999999")
	respond(t, fx.engine, testUserID, dm, "y")
	respond(t, fx.engine, testUserID, dm, "123456")
	require.NoError(t, <-done)

	sends := fx.gateway.sends()
	require.Len(t, sends, 4)
	assert.Equal(t, "Verification Failed", sends[1].msg.Title)
	assert.Equal(t, "Verification Successful", sends[3].msg.Title)

	// A retry issues a fresh challenge.
	assert.Equal(t, 2, fx.challenger.issueCount())
	assert.Equal(t, 1, fx.roles.grantCount())
}

func TestStartSessionWrongThenDecline(t *testing.T) {
	t.Parallel()

	fx := setupTest(t, dmConfig())
	dm := dmChannelBase + testUserID

	done := startSession(fx, verify.Trigger{UserID: testUserID, GuildID: testGuildID})
	respond(t, fx.engine, testUserID, dm, "999999")
	respond(t, fx.engine, testUserID, dm, "n")
	require.NoError(t, <-done)

	sends := fx.gateway.sends()
	require.Len(t, sends, 3)
	assert.Contains(t, sends[2].msg.Description, "Bye!")
	assert.Equal(t, 1, fx.challenger.issueCount())
	assert.Zero(t, fx.roles.grantCount())
}

func TestStartSessionAttemptCap(t *testing.T) {
	t.Parallel()

	fx := setupTest(t, dmConfig(), verify.WithMaxAttempts(2))
	fx.challenger.correct = "never"
	dm := dmChannelBase + testUserID

	done := startSession(fx, verify.Trigger{UserID: testUserID, GuildID: testGuildID})
	respond(t, fx.engine, testUserID, dm, "111111")
	respond(t, fx.engine, testUserID, dm, "y")
	respond(t, fx.engine, testUserID, dm, "222222")
	respond(t, fx.engine, testUserID, dm, "y")
	require.NoError(t, <-done)

	sends := fx.gateway.sends()
	require.Len(t, sends, 5)
	assert.Contains(t, sends[4].msg.Description, "Bye!")
	assert.Equal(t, 2, fx.challenger.issueCount())
	assert.Zero(t, fx.roles.grantCount())
}

func TestStartSessionGarbageRepliesTerminate(t *testing.T) {
	t.Parallel()

	fx := setupTest(t, dmConfig(), verify.WithMaxAttempts(2))
	fx.challenger.correct = "never"
	dm := dmChannelBase + testUserID

	done := startSession(fx, verify.Trigger{UserID: testUserID, GuildID: testGuildID})
	respond(t, fx.engine, testUserID, dm, "111111")
	respond(t, fx.engine, testUserID, dm, "maybe")
	respond(t, fx.engine, testUserID, dm, "perhaps")
	require.NoError(t, <-done)

	sends := fx.gateway.sends()
	require.Len(t, sends, 4)
	assert.Contains(t, sends[3].msg.Description, "Bye!")
	assert.Equal(t, 1, fx.challenger.issueCount())
	assert.Zero(t, fx.roles.grantCount())
}

func TestStartSessionConcurrentTriggerDropped(t *testing.T) {
	t.Parallel()

	fx := setupTest(t, dmConfig())
	dm := dmChannelBase + testUserID

	done := startSession(fx, verify.Trigger{UserID: testUserID, GuildID: testGuildID})

	// Wait until the first session is holding the user and waiting on a reply.
	require.Eventually(t, func() bool {
		return len(fx.gateway.sends()) == 1
	}, 2*time.Second, 2*time.Millisecond)

	err := fx.engine.StartSession(context.Background(), verify.Trigger{UserID: testUserID, GuildID: testGuildID})
	require.NoError(t, err)
	assert.Equal(t, 1, fx.challenger.issueCount())

	respond(t, fx.engine, testUserID, dm, "123456")
	require.NoError(t, <-done)
	assert.Equal(t, 1, fx.roles.grantCount())
}

func TestStartSessionReactionMethodPointer(t *testing.T) {
	t.Parallel()

	invoked := uint64(777)
	cfg := dmConfig()
	cfg.Method = verify.MethodReaction

	fx := setupTest(t, cfg)

	err := fx.engine.StartSession(context.Background(), verify.Trigger{
		UserID:    testUserID,
		GuildID:   testGuildID,
		ChannelID: invoked,
		Manual:    true,
	})
	require.NoError(t, err)

	sends := fx.gateway.sends()
	require.Len(t, sends, 1)
	assert.Contains(t, sends[0].msg.Description, "react to verification message")
	assert.Zero(t, fx.challenger.issueCount())
}

func reactionConfig() *verify.GuildConfig {
	return &verify.GuildConfig{
		GuildID:           testGuildID,
		Method:            verify.MethodReaction,
		VerifiedRoleID:    testRoleID,
		ReactionChannelID: 600,
		ReactionMessageID: 601,
		ReactionEmoji:     verify.EmojiRef{Unicode: "✅", IsUnicode: true},
	}
}

func TestHandleReaction(t *testing.T) {
	t.Parallel()

	match := verify.ReactionTrigger{
		UserID:    testUserID,
		GuildID:   testGuildID,
		ChannelID: 600,
		MessageID: 601,
		Emoji:     verify.EmojiRef{Unicode: "✅", IsUnicode: true},
	}

	tests := []struct {
		name    string
		mutate  func(*verify.ReactionTrigger)
		granted bool
	}{
		{
			name:    "matching reaction verifies",
			mutate:  func(*verify.ReactionTrigger) {},
			granted: true,
		},
		{
			name:    "wrong emoji ignored",
			mutate:  func(t *verify.ReactionTrigger) { t.Emoji = verify.EmojiRef{Unicode: "❌", IsUnicode: true} },
			granted: false,
		},
		{
			name:    "custom emoji does not match unicode",
			mutate:  func(t *verify.ReactionTrigger) { t.Emoji = verify.EmojiRef{CustomID: 42} },
			granted: false,
		},
		{
			name:    "wrong channel ignored",
			mutate:  func(t *verify.ReactionTrigger) { t.ChannelID = 999 },
			granted: false,
		},
		{
			name:    "wrong message ignored",
			mutate:  func(t *verify.ReactionTrigger) { t.MessageID = 999 },
			granted: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fx := setupTest(t, reactionConfig())

			trigger := match
			tt.mutate(&trigger)

			require.NoError(t, fx.engine.HandleReaction(context.Background(), trigger))

			if !tt.granted {
				assert.Zero(t, fx.roles.grantCount())
				assert.Empty(t, fx.gateway.sends())

				return
			}

			require.Equal(t, 1, fx.roles.grantCount())

			sends := fx.gateway.sends()
			require.Len(t, sends, 1)
			assert.Equal(t, dmChannelBase+testUserID, sends[0].channelID)
			assert.Equal(t, "Verification Successful", sends[0].msg.Title)
		})
	}
}

func TestHandleReactionWrongMethod(t *testing.T) {
	t.Parallel()

	fx := setupTest(t, dmConfig())

	err := fx.engine.HandleReaction(context.Background(), verify.ReactionTrigger{
		UserID:    testUserID,
		GuildID:   testGuildID,
		ChannelID: 600,
		MessageID: 601,
		Emoji:     verify.EmojiRef{Unicode: "✅", IsUnicode: true},
	})
	require.NoError(t, err)
	assert.Zero(t, fx.roles.grantCount())
}

func TestHandleMessageWithoutWaiter(t *testing.T) {
	t.Parallel()

	fx := setupTest(t, dmConfig())
	assert.False(t, fx.engine.HandleMessage(testUserID, 123, "hello"))
}
