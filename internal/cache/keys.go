package cache

import (
	"fmt"
	"strings"
)

// GET /api/posts
// posts:list:status={status}:limit={limit}:offset={offset}
func PostListKey(status string, limit, offset int) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		s = "all"
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	return fmt.Sprintf("posts:list:status=%s:limit=%d:offset=%d", s, limit, offset)
}

// Set of every cached list key, so a row mutation can invalidate the whole
// family without SCAN.
func PostListKeysSetKey() string {
	return "posts:list:keys"
}

// RunLockKey guards the publish run across service instances.
func RunLockKey() string {
	return "posts:publish:lock"
}
