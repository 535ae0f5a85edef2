package llm

import "strings"

// CleanSource strips markdown code fences from a model response. Models wrap
// source in ```move blocks more often than not; the compiler wants bare text.
func CleanSource(content string) string {
	if !strings.Contains(content, "```") {
		return strings.TrimSpace(content)
	}

	lines := strings.Split(content, "\n")
	var cleaned []string
	inBlock := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inBlock = !inBlock
			continue
		}
		if inBlock {
			cleaned = append(cleaned, line)
		}
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// CodeBlock is one fenced block extracted from a markdown response.
type CodeBlock struct {
	Language string
	Content  string
}

// ExtractCodeBlocks pulls every fenced block out of a markdown response.
// Used when a single generation returns both a contract and its test module.
func ExtractCodeBlocks(content string) []CodeBlock {
	var blocks []CodeBlock
	var current *CodeBlock
	var currentLines []string

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if current == nil {
				current = &CodeBlock{Language: strings.TrimPrefix(trimmed, "```")}
				currentLines = nil
			} else {
				current.Content = strings.Join(currentLines, "\n")
				blocks = append(blocks, *current)
				current = nil
			}
			continue
		}
		if current != nil {
			currentLines = append(currentLines, line)
		}
	}

	return blocks
}
