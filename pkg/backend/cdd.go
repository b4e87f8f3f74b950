package backend

import (
	"fmt"
	"strings"

	"github.com/ctkgo/deviceaccess/pkg/deverrs"
)

// Descriptor is a parsed device-descriptor string (CDD, spec §6):
//
//	( backendType [ : address ] [ ? key=value (& key=value)* ] )
//
// backendType matches [A-Za-z][A-Za-z0-9]*; address and parameter values
// may escape '?', '&', '\\', ')' and '(' with a backslash, and nested
// parentheses balance (a parameter value may itself be a full CDD, e.g.
// logicalNameMapper's "target" parameter naming the backend it wraps).
type Descriptor struct {
	Type       string
	Address    string
	Parameters map[string]string
}

// ParseCDD parses a device-descriptor string, grounded on the syntax
// exercised by testBackendFactory.cpp's createBackend calls
// (e.g. "(dummy?map=mtcadummy.map)", "(newBackend?map=goodMapFile.map)").
func ParseCDD(s string) (Descriptor, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return Descriptor{}, deverrs.NewLogicError("ParseCDD", "device descriptor %q must be wrapped in parentheses", s)
	}
	inner := s[1 : len(s)-1]
	if depth := balance(inner); depth != 0 {
		return Descriptor{}, deverrs.NewLogicError("ParseCDD", "device descriptor %q has unbalanced parentheses", s)
	}

	typeEnd, err := scanType(inner)
	if err != nil {
		return Descriptor{}, deverrs.NewLogicError("ParseCDD", "device descriptor %q: %v", s, err)
	}
	backendType := inner[:typeEnd]
	rest := inner[typeEnd:]

	var address string
	if strings.HasPrefix(rest, ":") {
		end := findUnescaped(rest[1:], '?')
		if end < 0 {
			address = unescape(rest[1:])
			rest = ""
		} else {
			address = unescape(rest[1 : 1+end])
			rest = rest[1+end:]
		}
	}

	params := map[string]string{}
	if strings.HasPrefix(rest, "?") {
		for _, pair := range splitUnescaped(rest[1:], '&') {
			kv := strings.SplitN(pair, "=", 2)
			key := unescape(kv[0])
			value := ""
			if len(kv) == 2 {
				value = unescape(kv[1])
			}
			params[key] = value
		}
	} else if rest != "" {
		return Descriptor{}, deverrs.NewLogicError("ParseCDD", "device descriptor %q has trailing content %q", s, rest)
	}

	return Descriptor{Type: backendType, Address: address, Parameters: params}, nil
}

func scanType(s string) (int, error) {
	i := 0
	for i < len(s) {
		c := s[i]
		isAlpha := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
		isDigit := c >= '0' && c <= '9'
		if i == 0 && !isAlpha {
			return 0, fmt.Errorf("backend type must start with a letter")
		}
		if !isAlpha && !isDigit {
			break
		}
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("missing backend type")
	}
	return i, nil
}

// balance returns the net paren depth of s, treating backslash-escaped
// parens as literal characters.
func balance(s string) int {
	depth := 0
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	return depth
}

// findUnescaped returns the index of the first unescaped occurrence of
// sep at paren-depth 0, or -1 if none exists.
func findUnescaped(s string, sep byte) int {
	depth := 0
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '(':
			depth++
		case ')':
			depth--
		default:
			if c == sep && depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitUnescaped splits s on every unescaped occurrence of sep at
// paren-depth 0, so a parameter value containing a nested CDD (which may
// itself contain '&' or '?') is never split in the middle.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	for {
		idx := findUnescaped(s, sep)
		if idx < 0 {
			parts = append(parts, s)
			return parts
		}
		parts = append(parts, s[:idx])
		s = s[idx+1:]
	}
}

// unescape removes a backslash from before any of '?', '&', '\\', ')', '('.
func unescape(s string) string {
	var b strings.Builder
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
