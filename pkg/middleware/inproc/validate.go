package inproc

import (
	"strings"

	"github.com/wavemesh/talaria/pkg/middleware"
)

// Name grammar: node names are non-empty runs of alphanumerics and
// underscores that do not start with a digit. Namespaces are absolute,
// slash-delimited sequences of such tokens, with "/" alone naming the root.
// Topic and service names additionally allow '/' separators and a leading
// '~' for node-private names. All of it is ASCII by contract; offsets
// reported in validation results are byte offsets.

func isAlnumOrUnderscore(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func validateNodeName(name string) middleware.ValidationResult {
	if name == "" {
		return invalid("node name must not be empty", 0)
	}
	for i := 0; i < len(name); i++ {
		if !isAlnumOrUnderscore(name[i]) {
			return invalid("node name must not contain characters other than alphanumerics or '_'", i)
		}
	}
	if isDigit(name[0]) {
		return invalid("node name must not start with a number", 0)
	}
	return valid()
}

func validateNamespace(namespace string) middleware.ValidationResult {
	if namespace == "" {
		return invalid("namespace must not be empty", 0)
	}
	if namespace[0] != '/' {
		return invalid("namespace must be absolute, it must lead with a '/'", 0)
	}
	if len(namespace) > 1 && namespace[len(namespace)-1] == '/' {
		return invalid("namespace must not end with a '/'", len(namespace)-1)
	}
	if i := strings.Index(namespace, "//"); i >= 0 {
		return invalid("namespace must not contain repeated '/'", i+1)
	}
	tokenStart := 1
	for i := 1; i <= len(namespace); i++ {
		if i == len(namespace) || namespace[i] == '/' {
			if i > tokenStart && isDigit(namespace[tokenStart]) {
				return invalid("namespace must not have a token that starts with a number", tokenStart)
			}
			tokenStart = i + 1
			continue
		}
		if !isAlnumOrUnderscore(namespace[i]) {
			return invalid("namespace must not contain characters other than alphanumerics, '_', or '/'", i)
		}
	}
	return valid()
}

func validateTopicName(name string) middleware.ValidationResult {
	if name == "" {
		return invalid("topic name must not be empty", 0)
	}
	if name[len(name)-1] == '/' {
		return invalid("topic name must not end with a '/'", len(name)-1)
	}
	if i := strings.Index(name, "//"); i >= 0 {
		return invalid("topic name must not contain repeated '/'", i+1)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '/' || isAlnumOrUnderscore(c) {
			continue
		}
		if c == '~' && i == 0 {
			continue
		}
		return invalid("topic name must not contain characters other than alphanumerics, '_', '~', or '/'", i)
	}
	return valid()
}

func valid() middleware.ValidationResult {
	return middleware.ValidationResult{Valid: true, InvalidIndex: -1}
}

func invalid(reason string, index int) middleware.ValidationResult {
	return middleware.ValidationResult{Reason: reason, InvalidIndex: index}
}
