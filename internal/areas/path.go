package areas

import (
	"fmt"
	"sort"
	"strings"
)

// Separator joins path segments.
const Separator = "."

// ChildPath returns the path and level of a new area under parent, or of a
// root area when parent is nil.
func ChildPath(parent *Area, segment string) (string, int, error) {
	segment = strings.TrimSpace(segment)
	if segment == "" || strings.Contains(segment, Separator) {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidSegment, segment)
	}
	if parent == nil {
		return segment, 1, nil
	}
	return parent.Path + Separator + segment, parent.Level + 1, nil
}

// IsDescendant reports whether path lies strictly below ancestor.
func IsDescendant(path, ancestor string) bool {
	return strings.HasPrefix(path, ancestor+Separator)
}

// IsSelfOrDescendant reports whether path equals ancestor or lies below it.
func IsSelfOrDescendant(path, ancestor string) bool {
	return path == ancestor || IsDescendant(path, ancestor)
}

// Depth is the number of segments in path.
func Depth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, Separator) + 1
}

// conflictsWithSibling reports whether candidate and a sibling path are
// string prefixes of one another.
func conflictsWithSibling(candidate string, siblings []Area) bool {
	for _, s := range siblings {
		if strings.HasPrefix(s.Path, candidate) || strings.HasPrefix(candidate, s.Path) {
			return true
		}
	}
	return false
}

// Violation is one broken tree invariant.
type Violation struct {
	AreaID int64  `json:"areaId"`
	Path   string `json:"path"`
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

// Tree invariants checked by CheckTree.
const (
	RuleParentPrefix   = "parent_prefix"
	RuleLevelDepth     = "level_depth"
	RuleSiblingPrefix  = "sibling_prefix"
	RuleMissingParent  = "missing_parent"
	RuleDuplicatePath  = "duplicate_path"
	RuleInactiveParent = "inactive_parent"
)

// Rules lists every rule CheckTree can report.
func Rules() []string {
	return []string{
		RuleParentPrefix, RuleLevelDepth, RuleSiblingPrefix,
		RuleMissingParent, RuleDuplicatePath, RuleInactiveParent,
	}
}

// CheckTree verifies the materialized-path invariants over a full area list.
// Violations come back sorted by path.
func CheckTree(all []Area) []Violation {
	byID := make(map[int64]Area, len(all))
	byPath := make(map[string]int64, len(all))
	children := make(map[int64][]Area)
	var roots []Area
	var out []Violation

	for _, a := range all {
		byID[a.ID] = a
		if other, ok := byPath[a.Path]; ok {
			out = append(out, Violation{AreaID: a.ID, Path: a.Path, Rule: RuleDuplicatePath,
				Detail: fmt.Sprintf("path also used by area %d", other)})
			continue
		}
		byPath[a.Path] = a.ID
	}

	for _, a := range all {
		if a.Level != Depth(a.Path) {
			out = append(out, Violation{AreaID: a.ID, Path: a.Path, Rule: RuleLevelDepth,
				Detail: fmt.Sprintf("level %d, path depth %d", a.Level, Depth(a.Path))})
		}
		if a.ParentID == nil {
			roots = append(roots, a)
			if strings.Contains(a.Path, Separator) {
				out = append(out, Violation{AreaID: a.ID, Path: a.Path, Rule: RuleParentPrefix,
					Detail: "root path contains the separator"})
			}
			continue
		}
		parent, ok := byID[*a.ParentID]
		if !ok {
			out = append(out, Violation{AreaID: a.ID, Path: a.Path, Rule: RuleMissingParent,
				Detail: fmt.Sprintf("parent %d not found", *a.ParentID)})
			continue
		}
		children[parent.ID] = append(children[parent.ID], a)
		rest, found := strings.CutPrefix(a.Path, parent.Path+Separator)
		if !found || rest == "" || strings.Contains(rest, Separator) {
			out = append(out, Violation{AreaID: a.ID, Path: a.Path, Rule: RuleParentPrefix,
				Detail: fmt.Sprintf("parent path %q", parent.Path)})
		}
		if a.Active && !parent.Active {
			out = append(out, Violation{AreaID: a.ID, Path: a.Path, Rule: RuleInactiveParent,
				Detail: fmt.Sprintf("parent %d is inactive", parent.ID)})
		}
	}

	out = append(out, siblingViolations(roots)...)
	for _, group := range children {
		out = append(out, siblingViolations(group)...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Rule < out[j].Rule
	})
	return out
}

func siblingViolations(group []Area) []Violation {
	var out []Violation
	for j := range group {
		for i := range group {
			if i == j || group[i].Path == group[j].Path {
				continue
			}
			if strings.HasPrefix(group[j].Path, group[i].Path) {
				out = append(out, Violation{AreaID: group[j].ID, Path: group[j].Path, Rule: RuleSiblingPrefix,
					Detail: fmt.Sprintf("sibling path %q is a prefix", group[i].Path)})
				break
			}
		}
	}
	return out
}

// SortByPath orders areas canonically.
func SortByPath(list []Area) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Path < list[j].Path })
}
