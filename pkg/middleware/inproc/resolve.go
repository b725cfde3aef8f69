package inproc

import "strings"

// joinNamespace builds the fully qualified name of a token under a
// namespace. The root namespace "/" contributes a single leading slash.
func joinNamespace(namespace, token string) string {
	if namespace == "/" {
		return "/" + token
	}
	return namespace + "/" + token
}

// expandName expands a validated topic or service name to its fully
// qualified form. nodeFQN is the node's fully qualified name, which doubles
// as its private namespace.
func expandName(name, namespace, nodeFQN string) string {
	switch {
	case strings.HasPrefix(name, "/"):
		// Already fully qualified; expansion is idempotent.
		return name
	case name == "~":
		return nodeFQN
	case strings.HasPrefix(name, "~/"):
		return nodeFQN + "/" + name[2:]
	default:
		return joinNamespace(namespace, name)
	}
}
