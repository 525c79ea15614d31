package coordinator

import (
	"strings"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
)

// DefaultRole is used when no configured role matches.
var DefaultRole = domain.Role{
	ID:     domain.DefaultRoleID,
	Name:   "Assistant",
	Prompt: "You are a helpful assistant. Answer clearly and concisely.",
}

// MergeSystemMessage combines a role prompt with the caller's system
// message. For the default role the caller's message replaces the role
// prompt; other roles keep their prompt as a prefix and the caller's
// message follows under a Task section.
func MergeSystemMessage(role domain.Role, caller string) string {
	caller = strings.TrimSpace(caller)
	prompt := strings.TrimSpace(role.Prompt)

	if role.ID == domain.DefaultRoleID || prompt == "" {
		if caller != "" {
			return caller
		}
		return prompt
	}
	if caller == "" {
		return prompt
	}
	return prompt + "\n\nTask:\n" + caller
}
