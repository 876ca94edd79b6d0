package model

import (
	"sort"
	"strconv"
)

// MsgRange is either an individual ID (Hi=0) or a range of IDs, low end inclusive (closed),
// high-end exclusive (open): [Low .. Hi), e.g. 1..5 -> 1, 2, 3, 4.
type MsgRange struct {
	Low int `json:"low,omitempty"`
	Hi  int `json:"hi,omitempty"`
}

// Upper returns the exclusive upper bound of the range.
func (r MsgRange) Upper() int {
	if r.Hi > r.Low {
		return r.Hi
	}
	return r.Low + 1
}

// Size returns the number of IDs in the range.
func (r MsgRange) Size() int {
	return r.Upper() - r.Low
}

// Contains checks if the ID falls within the range.
func (r MsgRange) Contains(id int) bool {
	return id >= r.Low && id < r.Upper()
}

// Overlaps checks if two ranges have at least one ID in common.
func (r MsgRange) Overlaps(o MsgRange) bool {
	return r.Low < o.Upper() && o.Low < r.Upper()
}

func (r MsgRange) String() string {
	if r.Hi <= r.Low+1 {
		return "{" + strconv.Itoa(r.Low) + "}"
	}
	return "{" + strconv.Itoa(r.Low) + ".." + strconv.Itoa(r.Hi) + "}"
}

// normalize removes the meaningless upper bound.
func (r *MsgRange) normalize() {
	if r.Hi <= r.Low+1 {
		r.Hi = 0
	}
}

// tryExtending adds id to the range if id is the next value after the range
// or is already the upper member. Returns true on success.
func (r *MsgRange) tryExtending(id int) bool {
	switch upper := r.Upper(); {
	case id >= r.Low && id < upper:
		return true
	case id == upper:
		r.Hi = upper + 1
		return true
	}
	return false
}

// SortRanges sorts ranges by Low ascending, wider ranges first when Low is the same.
func SortRanges(ranges []MsgRange) {
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Low != ranges[j].Low {
			return ranges[i].Low < ranges[j].Low
		}
		return ranges[i].Upper() > ranges[j].Upper()
	})
}

// ListToRanges converts a list of IDs to as few ranges as possible.
// The list is sorted in place. Returns nil for an empty list.
func ListToRanges(list []int) []MsgRange {
	if len(list) == 0 {
		return nil
	}
	sort.Ints(list)

	ranges := []MsgRange{{Low: list[0]}}
	curr := &ranges[0]
	for _, id := range list[1:] {
		if !curr.tryExtending(id) {
			curr.normalize()
			ranges = append(ranges, MsgRange{Low: id})
			curr = &ranges[len(ranges)-1]
		}
	}
	curr.normalize()
	return ranges
}

// Collapse merges possibly overlapping or adjacent ranges into as few
// non-overlapping ranges as possible: [1..6],[2..4],[5..7] -> [1..7].
// The input is sorted in place, the result reuses its storage.
func Collapse(ranges []MsgRange) []MsgRange {
	if len(ranges) < 2 {
		return ranges
	}
	SortRanges(ranges)

	prev := 0
	for i := 1; i < len(ranges); i++ {
		prevHi := ranges[prev].Upper()
		if prevHi >= ranges[i].Low {
			// Overlap or adjacency.
			if currHi := ranges[i].Upper(); currHi > prevHi {
				ranges[prev].Hi = currHi
			}
			continue
		}
		prev++
		ranges[prev] = ranges[i]
	}
	ranges = ranges[:prev+1]
	for i := range ranges {
		ranges[i].normalize()
	}
	return ranges
}

// Enclosing returns the smallest range which contains all the given ranges.
// The input must be sorted. Returns nil for empty input.
func Enclosing(ranges []MsgRange) *MsgRange {
	if len(ranges) == 0 {
		return nil
	}
	first := ranges[0]
	hi := first.Upper()
	for _, r := range ranges[1:] {
		if u := r.Upper(); u > hi {
			hi = u
		}
	}
	first.Hi = hi
	return &first
}

// RangesToList expands ranges into a sorted list of individual IDs.
func RangesToList(ranges []MsgRange) []int {
	var list []int
	for _, r := range ranges {
		for id := r.Low; id < r.Upper(); id++ {
			list = append(list, id)
		}
	}
	return list
}
