// Package validation valida entradas que terminan en URLs, queries JQL o
// parámetros OAuth de los proveedores.
package validation

import (
	"fmt"
	"regexp"
)

var (
	// Scopes OAuth: minúsculas, arrancan y terminan alfanumérico; ':' '_' '.' '-'
	// en el medio (user:email, read:jira-work, offline_access).
	scopeRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

	// Clave de proyecto Jira (DEV, OPS_2).
	projectKeyRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,19}$`)

	// Owner o nombre de repo de GitHub.
	gitHubNameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,100}$`)
)

// Scope reporta si s es un scope aceptable.
func Scope(s string) bool { return scopeRe.MatchString(s) }

// Scopes devuelve error con el primer scope inválido.
func Scopes(list []string) error {
	for _, s := range list {
		if !Scope(s) {
			return fmt.Errorf("invalid scope %q", s)
		}
	}
	return nil
}

// ProjectKey reporta si s puede interpolarse como clave de proyecto en JQL.
func ProjectKey(s string) bool { return projectKeyRe.MatchString(s) }

// GitHubName valida owner/repo antes de armar el path. "." y ".." no son nombres.
func GitHubName(s string) bool {
	return s != "." && s != ".." && gitHubNameRe.MatchString(s)
}
