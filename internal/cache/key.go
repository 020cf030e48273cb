package cache

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// Cache keys are hierarchical: namespace, granularity, then either an
// entity id or a hash of the list filters. Prefix invalidation relies on
// this layout, so the separators below are load-bearing.
const (
	granularityList   = "list"
	granularityDetail = "detail"
)

// DetailKey builds the cache key for a single entity.
func DetailKey(namespace, id string) string {
	return strings.Join([]string{namespace, granularityDetail, id}, ":")
}

// ListKey builds the cache key for a filtered list query. Two filter sets
// with identical content produce identical keys regardless of insertion
// order, so logically-equivalent queries always hit the same entry.
func ListKey(namespace string, filters map[string]string) string {
	return strings.Join([]string{namespace, granularityList, hashFilters(filters)}, ":")
}

// NamespacePrefix is the invalidation prefix covering every entry of a
// namespace, lists and details alike.
func NamespacePrefix(namespace string) string {
	return namespace + ":"
}

// ListPrefix is the invalidation prefix covering all list entries of a
// namespace while leaving details intact.
func ListPrefix(namespace string) string {
	return namespace + ":" + granularityList + ":"
}

// hashFilters computes a deterministic FNV-1a hash over the filter set.
// Keys are sorted so insertion order never leaks into the key.
func hashFilters(filters map[string]string) string {
	if len(filters) == 0 {
		return "all"
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte("="))
		_, _ = h.Write([]byte(filters[k]))
		_, _ = h.Write([]byte("|"))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
