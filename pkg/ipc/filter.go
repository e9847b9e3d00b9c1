package ipc

import (
	"strconv"
	"strings"

	"github.com/rrflink/sbcd/pkg/model"
)

// Filter is one parsed subscription filter path: a dotted sequence of
// segments where "**" matches any suffix, a plain word matches a key
// exactly, and "name[n]" matches an array-node segment named name,
// pinned to index n if n is present.
type Filter struct {
	segments []filterSegment
}

type filterSegment struct {
	wildcard  bool // "**"
	key       string
	arrayName string
	index     int // -1 if unpinned
	isArray   bool
}

// ParseFilter splits a dotted filter string into a Filter.
func ParseFilter(s string) Filter {
	if s == "" {
		return Filter{}
	}
	parts := strings.Split(s, ".")
	segs := make([]filterSegment, 0, len(parts))
	for _, p := range parts {
		segs = append(segs, parseFilterSegment(p))
	}
	return Filter{segments: segs}
}

func parseFilterSegment(p string) filterSegment {
	if p == "**" {
		return filterSegment{wildcard: true}
	}
	open := strings.IndexByte(p, '[')
	if open < 0 || !strings.HasSuffix(p, "]") {
		return filterSegment{key: p}
	}
	name := p[:open]
	idxStr := p[open+1 : len(p)-1]
	idx := -1
	if idxStr != "" {
		if n, err := strconv.Atoi(idxStr); err == nil {
			idx = n
		}
	}
	return filterSegment{arrayName: name, index: idx, isArray: true}
}

// Matches reports whether path satisfies this filter: an empty path
// (root replacement) matches every filter, "**" matches any suffix, a
// plain segment matches a key exactly, and an array-node segment
// matches same array name with index ignored unless
// the filter pins it.
func (f Filter) Matches(path model.Path) bool {
	if len(path) == 0 {
		return true
	}
	return matchSegments(f.segments, path)
}

func matchSegments(filterSegs []filterSegment, path model.Path) bool {
	for i, fs := range filterSegs {
		if fs.wildcard {
			return true
		}
		if i >= len(path) {
			return false
		}
		seg := path[i]
		switch seg.Kind {
		case model.PathKey:
			if fs.isArray || fs.key != seg.Key {
				return false
			}
		case model.PathArrayIndex:
			if !fs.isArray || fs.arrayName != seg.ArrayName {
				return false
			}
			if fs.index >= 0 && fs.index != seg.Index {
				return false
			}
		}
	}
	return true
}

// MatchesAny reports whether path satisfies any filter in filters. An
// empty filter set matches nothing by this helper's contract; callers
// that want "no filters = everything" check len(filters) == 0 first.
func MatchesAny(filters []Filter, path model.Path) bool {
	for _, f := range filters {
		if f.Matches(path) {
			return true
		}
	}
	return false
}
