package jsonrpc2

import "sort"

// pendingOldest returns the keys of the num oldest pending calls, oldest
// first. Calls created at the same time are ordered by key.
func pendingOldest(pending map[string]*Call, num int) []string {
	keys := make([]string, 0, len(pending))
	for key := range pending {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := pending[keys[i]].Created, pending[keys[j]].Created
		if a.Equal(b) {
			return keys[i] < keys[j]
		}
		return a.Before(b)
	})
	if num < len(keys) {
		keys = keys[:num]
	}
	return keys
}
