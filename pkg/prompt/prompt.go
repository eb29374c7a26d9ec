// Package prompt holds the per-role prompt bundles driving the agents. Prompt
// text is configuration: the defaults here can be replaced wholesale from the
// config file, and the runner only performs placeholder substitution.
package prompt

import (
	"strings"

	"github.com/entropyops/debtscan/pkg/models"
)

// Bundle is one role's prompt pair. User templates carry {{placeholder}}
// tokens substituted at call time.
type Bundle struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Library maps roles to their bundles.
type Library struct {
	bundles map[models.AgentRole]Bundle
}

// DefaultLibrary returns the built-in prompts for the standard roster.
func DefaultLibrary() *Library {
	return &Library{bundles: map[models.AgentRole]Bundle{
		models.RoleScanner:   {System: scannerSystem, User: scannerUser},
		models.RoleArchitect: {System: architectSystem, User: architectUser},
		models.RoleHistorian: {System: historianSystem, User: historianUser},
		models.RoleCritic:    {System: criticSystem, User: criticUser},
	}}
}

// Override replaces a role's bundle. Empty fields keep the default.
func (l *Library) Override(role models.AgentRole, b Bundle) {
	cur := l.bundles[role]
	if b.System != "" {
		cur.System = b.System
	}
	if b.User != "" {
		cur.User = b.User
	}
	l.bundles[role] = cur
}

// Bundle returns the bundle for a role.
func (l *Library) Bundle(role models.AgentRole) Bundle {
	return l.bundles[role]
}

// Render substitutes {{key}} tokens in template with the given values.
func Render(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
