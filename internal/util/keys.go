package util

import "strings"

// StorageKey returns "<prefix>:<ns>:<key>", omitting empty parts.
// Keys are isolated per namespace so two stores never share a keyspace.
func StorageKey(prefix, ns, key string) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(ns) + len(key) + 2)
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte(':')
	}
	if ns != "" {
		b.WriteString(ns)
		b.WriteByte(':')
	}
	b.WriteString(key)
	return b.String()
}

// StorageKeys maps StorageKey over keys, preserving order and duplicates.
func StorageKeys(prefix, ns string, keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = StorageKey(prefix, ns, k)
	}
	return out
}
