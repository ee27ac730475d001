// Package tags merges judge-suggested descriptive audio tags into the set
// prepended to a script on retry attempts.
package tags

import "strings"

// Directional tags derived from the speed correction; the provider reads them
// as delivery hints alongside the numeric speed parameter.
const (
	TagSlower = "slower"
	TagFaster = "faster"
)

// Merge folds suggested tags into existing ones, deduplicated and order
// preserving. Existing tags come first; suggestions fill the remaining slots
// up to maxTags, in the order the judge produced them. Tags are opaque short
// strings; empty and whitespace-only suggestions are dropped.
func Merge(existing, suggested []string, maxTags int) []string {
	if maxTags <= 0 {
		return nil
	}

	merged := make([]string, 0, maxTags)
	seen := make(map[string]struct{}, maxTags)

	appendTag := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" || len(merged) >= maxTags {
			return
		}

		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			return
		}

		seen[key] = struct{}{}
		merged = append(merged, tag)
	}

	for _, tag := range existing {
		appendTag(tag)
	}

	for _, tag := range suggested {
		appendTag(tag)
	}

	return merged
}

// Directional returns the pacing tag matching a speed correction, or "" when
// the speed is neutral.
func Directional(speed float64) string {
	switch {
	case speed < 1.0:
		return TagSlower
	case speed > 1.0:
		return TagFaster
	default:
		return ""
	}
}

// Apply prepends the bracketed tag prefix to the script text, matching the
// provider's inline audio-tag syntax. With no tags the script is returned
// unchanged.
func Apply(script string, tagList []string) string {
	if len(tagList) == 0 {
		return script
	}

	var builder strings.Builder

	for _, tag := range tagList {
		builder.WriteByte('[')
		builder.WriteString(tag)
		builder.WriteString("] ")
	}

	builder.WriteString(script)

	return builder.String()
}
