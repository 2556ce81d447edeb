// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package controlmode

import "sort"

// Mask selects which bits of a Code take part in a comparison.
type Mask uint8

const (
	MatchAll          Mask = 0xFF
	MatchModeAndFrame Mask = 0xF3
	MatchMode         Mask = 0xF0
)

// levelMask extracts the class level of an output mode when checking that an
// input mode is not below it.
const levelMask Code = 0x78

// Matches reports whether a and b are equal under mask m.
func Matches(a, b Code, m Mask) bool {
	return a&Code(m) == b&Code(m)
}

// Class returns the control mode class bits of c.
func (c Code) Class() Code {
	return c & Code(MatchMode)
}

// Level returns the value used to compare an output mode's level against an
// input mode's class.
func (c Code) Level() Code {
	return c & levelMask
}

// IsUnsetOrHover reports whether c belongs to the UNSET or HOVER class.
func (c Code) IsUnsetOrHover() bool {
	return c.Class() == CodeUnset || c.Class() == CodeHover
}

// BestMatch scans candidates in order and returns the first one equal to
// target. Without an exact hit it returns the last candidate that matched
// target under m, or CodeUnset when none did.
func BestMatch(target Code, candidates []Code, m Mask) Code {
	best := CodeUnset
	for _, candidate := range candidates {
		if !Matches(target, candidate, m) {
			continue
		}
		best = candidate
		if candidate == target {
			return candidate
		}
	}
	return best
}

// List is an ordered set of capability codes.
type List []Code

// NewSortedList copies codes and sorts the copy ascending.
func NewSortedList(codes []Code) List {
	l := make(List, len(codes))
	copy(l, codes)
	sort.Slice(l, func(i, j int) bool { return l[i] < l[j] })
	return l
}

// Contains reports whether c is in l.
func (l List) Contains(c Code) bool {
	for _, v := range l {
		if v == c {
			return true
		}
	}
	return false
}
