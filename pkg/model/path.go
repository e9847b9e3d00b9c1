// Package model implements the object-model store: a single
// read-write-locked tree, change-path notifications for the IPC
// subscription fan-out, and patch construction.
package model

import "fmt"

// PathKind distinguishes a plain map key from an indexed array
// element within a change Path.
type PathKind int

const (
	PathKey PathKind = iota
	PathArrayIndex
)

// PathSegment is one element of a change Path: either a bare map key
// or an indexed slot within a named array, carrying the array's
// current length so patch construction can grow/truncate lists.
type PathSegment struct {
	Kind PathKind

	Key string // valid when Kind == PathKey

	ArrayName string // valid when Kind == PathArrayIndex
	Index     int
	ListSize  int
}

// Key returns a plain-key segment.
func Key(k string) PathSegment { return PathSegment{Kind: PathKey, Key: k} }

// ArrayElement returns an indexed-array segment.
func ArrayElement(arrayName string, index, listSize int) PathSegment {
	return PathSegment{Kind: PathArrayIndex, ArrayName: arrayName, Index: index, ListSize: listSize}
}

// Path is a sequence of segments locating a value in the tree. An
// empty Path denotes the tree root.
type Path []PathSegment

func (p Path) String() string {
	s := ""
	for _, seg := range p {
		switch seg.Kind {
		case PathKey:
			s += "." + seg.Key
		case PathArrayIndex:
			s += fmt.Sprintf(".%s[%d]", seg.ArrayName, seg.Index)
		}
	}
	return s
}
