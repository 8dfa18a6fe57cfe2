// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package basic

import (
	"fmt"
	"maps"
	"strings"
)

// Filtering masks collected facts before they leave the process.
type Filtering func(facts map[string]any) map[string]any

// Default reports every fact unchanged.
func Default(facts map[string]any) map[string]any { return facts }

// Nothing reports no facts.
func Nothing(map[string]any) map[string]any { return map[string]any{} }

// Redacted replaces the value of every "-flag=value" argument in the
// process command line, so credentials passed as flags are not
// reported.
func Redacted(facts map[string]any) map[string]any {
	masked := maps.Clone(facts)
	if args, ok := masked[ProcessArgs].(string); ok {
		masked[ProcessArgs] = RedactArgs(args)
	}
	return masked
}

// RedactedValue replaces argument values.
const RedactedValue = "ZZZZZZZZZ"

// RedactArgs rewrites "-name=value" and "--name=value" tokens to
// "-name=ZZZZZZZZZ". Tokens are split on spaces; single or double
// quotes starting a token or following "=" group spaces into one
// token, and a backslash escapes the next character.
func RedactArgs(args string) string {
	tokens := tokenizeArgs(args)
	for i, token := range tokens {
		if !strings.HasPrefix(token, "-") {
			continue
		}
		name, _, found := strings.Cut(token, "=")
		if found {
			tokens[i] = name + "=" + RedactedValue
		}
	}
	return strings.Join(tokens, " ")
}

func tokenizeArgs(args string) []string {
	var tokens []string
	var current strings.Builder
	var quote rune
	escaping, afterEquals := false, false

	for _, c := range args {
		switch {
		case escaping:
			escaping = false
			current.WriteRune(c)
			continue
		case c == '\\':
			escaping = true
			current.WriteRune(c)
			continue
		case c == '=':
			afterEquals = true
			current.WriteRune(c)
			continue
		case quote == 0 && c == ' ':
			tokens = append(tokens, current.String())
			current.Reset()
			continue
		case c == '\'' || c == '"':
			if quote != 0 {
				if c == quote {
					quote = 0
				}
			} else if afterEquals || current.Len() == 0 {
				quote = c
			}
		}
		afterEquals = false
		current.WriteRune(c)
	}
	return append(tokens, current.String())
}

// ParseFiltering maps a configuration name to a Filtering: "default"
// (or empty), "nothing" or "redacted".
func ParseFiltering(name string) (Filtering, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return Default, nil
	case "nothing":
		return Nothing, nil
	case "redacted":
		return Redacted, nil
	default:
		return nil, fmt.Errorf("unknown filtering %q (want default, nothing or redacted)", name)
	}
}
