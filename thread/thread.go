// Package thread turns a raw set of collected posts into the contiguous run
// written by the thread's author.
package thread

import (
	"sort"
	"strings"

	"github.com/use-agent/threadgrab/models"
)

// NormalizeHandle lowercases a handle and strips a leading "@".
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// SortByTimestamp returns a copy of posts ordered oldest first. Posts
// without a timestamp sort before every dated post; ties keep their input
// order.
func SortByTimestamp(posts []models.Post) []models.Post {
	out := make([]models.Post, len(posts))
	copy(out, posts)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Timestamp, out[j].Timestamp
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return out
}

// RootIndex returns the index of the first post in sorted written by
// target, or -1.
func RootIndex(sorted []models.Post, target string) int {
	t := NormalizeHandle(target)
	for i, p := range sorted {
		if NormalizeHandle(p.AuthorHandle) == t {
			return i
		}
	}
	return -1
}

// BoundaryReached reports whether, in the sorted posts, some post after the
// root has a different author. It is false while the root is missing.
func BoundaryReached(sorted []models.Post, target string) bool {
	root := RootIndex(sorted, target)
	if root < 0 {
		return false
	}
	t := NormalizeHandle(target)
	for _, p := range sorted[root+1:] {
		if NormalizeHandle(p.AuthorHandle) != t {
			return true
		}
	}
	return false
}

// Filter sorts posts by timestamp, finds the root post by target and keeps
// posts from the root onward until the first post by someone else. Posts
// before the root are dropped. If target never appears the result is empty.
func Filter(posts []models.Post, target string) []models.Post {
	sorted := SortByTimestamp(posts)
	root := RootIndex(sorted, target)
	if root < 0 {
		return []models.Post{}
	}

	t := NormalizeHandle(target)
	out := []models.Post{}
	for _, p := range sorted[root:] {
		if NormalizeHandle(p.AuthorHandle) != t {
			break
		}
		out = append(out, p)
	}
	return out
}
