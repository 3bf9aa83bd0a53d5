package core

import "strings"

// Object URIs are tenant-relative, e.g. "entities/1a2b3c" or
// "relations/9f8e7d". Callers may pass either the bare identifier or the
// full URI; these helpers canonicalize both forms.

func EntityURI(id string) string {
	return ensurePrefix(id, "entities/")
}

func RelationURI(id string) string {
	return ensurePrefix(id, "relations/")
}

// ObjectID strips any "entities/" or "relations/" prefix, returning the bare
// identifier.
func ObjectID(uri string) string {
	uri = strings.TrimPrefix(uri, "entities/")
	return strings.TrimPrefix(uri, "relations/")
}

func ensurePrefix(id, prefix string) string {
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}
