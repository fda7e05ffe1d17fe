package app

import (
	"regexp"

	"hypoforge/internal/errors"
)

var pythonBlockPattern = regexp.MustCompile("(?s)```python\\n*(.*?)\\n```(?:\\n|$)")

// ExtractCode returns the body of the last ```python fenced block, verbatim.
// Later blocks supersede earlier drafts.
func ExtractCode(text string) (string, error) {
	matches := pythonBlockPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", errors.NoCodeBlockFound()
	}
	return matches[len(matches)-1][1], nil
}
