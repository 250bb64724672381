package core

import "strings"

// BranchSeparator joins branch segments in Event.Branch.
const BranchSeparator = "."

// Branch is the ordered path of agent names owning an execution branch.
// Values are never mutated in place; Extend returns a copy.
type Branch []string

// ParseBranch splits a dotted branch string.
func ParseBranch(s string) Branch {
	if s == "" {
		return nil
	}
	return strings.Split(s, BranchSeparator)
}

// String renders the branch in dotted form.
func (b Branch) String() string { return strings.Join(b, BranchSeparator) }

// Extend returns a new branch with names appended.
func (b Branch) Extend(names ...string) Branch {
	out := make(Branch, 0, len(b)+len(names))
	out = append(out, b...)
	return append(out, names...)
}

// Contains reports whether other is equal to b or nested below it, i.e.
// whether b is a prefix of other.
func (b Branch) Contains(other Branch) bool {
	if len(b) > len(other) {
		return false
	}
	for i := range b {
		if b[i] != other[i] {
			return false
		}
	}
	return true
}
