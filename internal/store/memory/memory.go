// Package memory holds in-memory store implementations. They back the
// unit tests and single-process deployments where durability does not
// matter; the postgres package is the durable counterpart.
package memory

import "time"

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	clone := *f
	return &clone
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	return page, pageSize
}
