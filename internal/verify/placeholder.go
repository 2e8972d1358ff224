package verify

import (
	"strconv"
	"strings"
)

// PlaceholderContext maps template token names to their rendered values.
type PlaceholderContext map[string]string

// NewPlaceholderContext builds the token set available to start and success
// message templates.
func NewPlaceholderContext(guild *GuildInfo, member *MemberInfo) PlaceholderContext {
	return PlaceholderContext{
		"guild_name":          guild.Name,
		"guild_id":            strconv.FormatUint(guild.ID, 10),
		"guild_total_members": strconv.Itoa(guild.TotalMembers),
		"guild_humans":        strconv.Itoa(guild.HumanMembers),
		"member_name":         member.Username,
		"member_id":           strconv.FormatUint(member.ID, 10),
		"member_mention":      member.Mention(),
		"member_tag":          member.Tag(),
		"member_discrim":      member.Discriminator,
	}
}

// WithRole adds the success-message-only role tokens. A nil role leaves the
// context unchanged so the tokens render empty.
func (p PlaceholderContext) WithRole(role *RoleInfo) PlaceholderContext {
	if role == nil {
		return p
	}

	p["verified_role_name"] = role.Name
	p["verified_role_id"] = strconv.FormatUint(role.ID, 10)
	p["verified_role_mention"] = role.Mention()

	return p
}

// RenderPlaceholders substitutes {token}-style placeholders in a template.
// Unknown tokens render as the empty string; an unterminated brace is copied
// literally. Templates are guild-supplied free text and are never executed.
func RenderPlaceholders(template string, ctx PlaceholderContext) string {
	if !strings.ContainsRune(template, '{') {
		return template
	}

	var b strings.Builder

	b.Grow(len(template))

	for {
		open := strings.IndexByte(template, '{')
		if open < 0 {
			b.WriteString(template)
			break
		}

		closing := strings.IndexByte(template[open:], '}')
		if closing < 0 {
			b.WriteString(template)
			break
		}

		b.WriteString(template[:open])
		token := template[open+1 : open+closing]
		b.WriteString(ctx[token])
		template = template[open+closing+1:]
	}

	return b.String()
}
