package worldinfo

import "strings"

const (
	decoratorActivate     = "@@activate"
	decoratorDontActivate = "@@dont_activate"
)

type DecoratorResult struct {
	CleanContent string
	Activate     bool
	DontActivate bool
}

// ParseDecorators consumes leading directive lines from raw entry content. A line
// starting with "@@@" is an escaped literal and ends directive parsing.
func ParseDecorators(content string) DecoratorResult {
	result := DecoratorResult{CleanContent: content}
	if !strings.HasPrefix(strings.TrimLeft(content, " \t"), "@@") {
		return result
	}

	lines := strings.Split(content, "\n")
	consumed := 0
	for consumed < len(lines) {
		line := strings.TrimRight(lines[consumed], "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == decoratorActivate {
			result.Activate = true
			consumed++
			continue
		}
		if trimmed == decoratorDontActivate {
			result.DontActivate = true
			consumed++
			continue
		}
		if strings.HasPrefix(line, "@@@") {
			lines[consumed] = lines[consumed][1:]
		}
		break
	}

	result.CleanContent = strings.Join(lines[consumed:], "\n")
	return result
}
