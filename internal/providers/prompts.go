package providers

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/skim/internal/types"
)

var depthInstructions = map[types.Depth]string{
	1: "Provide a very concise 2-3 sentence summary:",
	2: "Summarize the key points in 1-2 paragraphs:",
	3: "Provide a detailed summary in 3-4 paragraphs, including main ideas and details:",
	4: "Give a comprehensive analysis, including themes, events, details, and significance:",
}

const nonChapterInstruction = "If the text is front matter, back matter, a table of contents, acknowledgements, " +
	"or otherwise not narrative content, respond with exactly " + types.NonChapterSentinel + " and nothing else."

// DepthInstruction returns the instruction used for depth.
func DepthInstruction(depth types.Depth) (string, error) {
	instr, ok := depthInstructions[depth]
	if !ok {
		return "", fmt.Errorf("%w: depth must be between 1 and 4, got %d", types.ErrInvalidInput, depth)
	}
	return instr, nil
}

// BuildPrompt assembles the full prompt sent to a model: the depth
// instruction, a blank line, then the chapter text.
func BuildPrompt(text string, depth types.Depth) (string, error) {
	instr, err := DepthInstruction(depth)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(instr)
	if depth == types.MinDepth {
		b.WriteString(" ")
		b.WriteString(nonChapterInstruction)
	}
	b.WriteString("\n\n")
	b.WriteString(text)
	return b.String(), nil
}
