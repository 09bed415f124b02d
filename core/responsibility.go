package core

import "strings"

// ResolveResponsibility derives the owning team of a work item.
//
// An explicit SAP-WBS style value wins when non-empty. Otherwise the area path
// decides: a trailing `ATP\ESUK` means ESUK, a trailing `ATP` with nothing after
// it means the internal team, reported as internalLabel (IL for requirements,
// Elisra for bugs and L3/L4 links). Anything else is Unknown.
func ResolveResponsibility(explicit, areaPath, internalLabel string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}

	segments := splitAreaPath(areaPath)
	n := len(segments)
	switch {
	case n >= 2 && strings.EqualFold(segments[n-2], "ATP") && strings.EqualFold(segments[n-1], "ESUK"):
		return ResponsibilityESUK
	case n >= 1 && strings.EqualFold(segments[n-1], "ATP"):
		return internalLabel
	default:
		return ResponsibilityUnknown
	}
}

func splitAreaPath(areaPath string) []string {
	parts := strings.FieldsFunc(areaPath, func(r rune) bool {
		return r == '\\' || r == '/'
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
