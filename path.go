package mscfb

import (
	"path"
	"strings"
)

// NameChainFromPath splits a slash-separated path into the chain of
// storage/stream names that must be walked from the root to reach it,
// using path.Clean to resolve "." and ".." components. A path that climbs
// above the root via ".." yields an empty chain rather than an error,
// letting callers treat it as "not found".
func NameChainFromPath(p string) []string {
	p = path.Clean(p)
	if p == "" {
		return []string{}
	}
	if p[0] == '/' {
		p = p[1:]
	}
	if p == "" {
		return []string{}
	}
	if strings.HasPrefix(p, "..") {
		return []string{}
	}
	return strings.Split(p, "/")
}

// PathFromNameChain renders a chain of names back into an absolute path.
func PathFromNameChain(names []string) string {
	return "/" + strings.Join(names, "/")
}
