// Package catalogue holds the plain-data description of a device's
// registers: RegisterPath identifiers, per-register RegisterInfo, the
// DataDescriptor that tells a caller what cooked type to expect, and the
// RegisterCatalogue that collects them (spec §2, grounded on
// NumericAddressedRegisterCatalogue.cc).
package catalogue

import "strings"

// RegisterPath is a canonicalised, slash-separated register identifier.
// "." is accepted as an alternate separator on input (spec: "RegisterPath
// ... alt-separator .") so "APP.0.WORD" and "/APP/0/WORD" name the same
// register.
type RegisterPath string

// NewPath canonicalises raw into slash form, trimming a leading slash and
// collapsing any "." separators to "/".
func NewPath(raw string) RegisterPath {
	raw = strings.ReplaceAll(raw, ".", "/")
	raw = strings.TrimPrefix(raw, "/")
	return RegisterPath(raw)
}

func (p RegisterPath) String() string { return string(p) }

// Components splits the path on "/".
func (p RegisterPath) Components() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), "/")
}

// StartsWith reports whether p begins with prefix (component-wise or raw
// string, matching the original's RegisterPath::startsWith semantics for
// the numeric_address::BAR() and "!" sentinels).
func (p RegisterPath) StartsWith(prefix string) bool {
	return strings.HasPrefix(string(p), prefix)
}

// Join appends a component, inserting a separating "/" if needed.
func (p RegisterPath) Join(component string) RegisterPath {
	if p == "" {
		return RegisterPath(component)
	}
	return RegisterPath(string(p) + "/" + component)
}
