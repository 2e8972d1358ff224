package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/janusbot/janus/internal/verify"
)

// memberRoles is the slice of the REST API the role grantor needs.
type memberRoles interface {
	GetMember(guildID, userID snowflake.ID, opts ...rest.RequestOpt) (*discord.Member, error)
	AddMemberRole(guildID, userID, roleID snowflake.ID, opts ...rest.RequestOpt) error
	GetRoles(guildID snowflake.ID, opts ...rest.RequestOpt) ([]discord.Role, error)
}

// RoleGrantor applies the verified role to members over the REST API.
type RoleGrantor struct {
	rest   memberRoles
	logger *zap.Logger
}

// NewRoleGrantor creates a role grantor.
func NewRoleGrantor(r memberRoles, logger *zap.Logger) *RoleGrantor {
	return &RoleGrantor{
		rest:   r,
		logger: logger.Named("roles"),
	}
}

// Grant adds the role to the member. An already-held role is returned without
// a platform mutation, keeping repeat verifications idempotent. A zero roleID
// returns nil without error.
func (g *RoleGrantor) Grant(ctx context.Context, guildID, userID, roleID uint64) (*verify.RoleInfo, error) {
	if roleID == 0 {
		return nil, nil
	}

	member, err := g.rest.GetMember(snowflake.ID(guildID), snowflake.ID(userID), rest.WithCtx(ctx))
	if err != nil {
		return nil, classifyRest(fmt.Errorf("failed to fetch member %d: %w", userID, err), err)
	}

	held := false

	for _, id := range member.RoleIDs {
		if uint64(id) == roleID {
			held = true
			break
		}
	}

	if !held {
		err := g.rest.AddMemberRole(snowflake.ID(guildID), snowflake.ID(userID), snowflake.ID(roleID),
			rest.WithCtx(ctx), rest.WithReason("Verified member"))
		if err != nil {
			return nil, classifyRest(fmt.Errorf("failed to add role %d to member %d: %w", roleID, userID, err), err)
		}

		g.logger.Debug("Granted verified role",
			zap.Uint64("guild_id", guildID),
			zap.Uint64("user_id", userID),
			zap.Uint64("role_id", roleID))
	}

	info := &verify.RoleInfo{ID: roleID}

	roles, err := g.rest.GetRoles(snowflake.ID(guildID), rest.WithCtx(ctx))
	if err != nil {
		// The grant already happened; the name only feeds placeholders.
		g.logger.Warn("Failed to resolve role name",
			zap.Uint64("guild_id", guildID),
			zap.Uint64("role_id", roleID),
			zap.Error(err))

		return info, nil
	}

	for _, role := range roles {
		if uint64(role.ID) == roleID {
			info.Name = role.Name
			break
		}
	}

	return info, nil
}

// classifyRest tags a REST failure with the session failure kind its status
// code implies.
func classifyRest(wrapped, raw error) error {
	var restErr *rest.Error
	if !errors.As(raw, &restErr) || restErr.Response == nil {
		return wrapped
	}

	switch restErr.Response.StatusCode {
	case http.StatusForbidden:
		return &verify.SessionError{Kind: verify.FailurePermission, Err: wrapped}
	case http.StatusNotFound:
		return &verify.SessionError{Kind: verify.FailureNotFound, Err: wrapped}
	default:
		return wrapped
	}
}
