package types

import (
	"errors"
	"slices"
	"strings"
)

// ProviderKind identifica un proveedor externo conectable.
type ProviderKind string

const (
	ProviderGitHub ProviderKind = "github"
	ProviderJira   ProviderKind = "jira"
)

// ErrUnknownProvider se devuelve cuando el path o la config nombran un proveedor no soportado.
var ErrUnknownProvider = errors.New("unknown provider")

// ProviderKinds lista los proveedores soportados, en orden estable.
func ProviderKinds() []ProviderKind {
	return []ProviderKind{ProviderGitHub, ProviderJira}
}

// ParseProviderKind normaliza el nombre ("GitHub", " jira ") y valida que sea soportado.
func ParseProviderKind(s string) (ProviderKind, error) {
	k := ProviderKind(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(ProviderKinds(), k) {
		return "", ErrUnknownProvider
	}
	return k, nil
}

func (k ProviderKind) String() string { return string(k) }

// Valid reporta si k es un proveedor soportado.
func (k ProviderKind) Valid() bool {
	_, err := ParseProviderKind(string(k))
	return err == nil
}
