package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

const (
	documentPromptPrefix = "Here is the document content to classify:\n\n"
	imagePrompt          = "Please analyze this document and classify it according to the specified categories."
)

func buildSystemPrompt(taxonomy domain.Taxonomy) string {
	var categories strings.Builder
	ids := make([]string, 0, taxonomy.Len())
	for _, c := range taxonomy.Categories() {
		line := fmt.Sprintf("%d: %s", c.ID, c.Label)
		if c.Description != "" {
			line += " (" + c.Description + ")"
		}
		categories.WriteString(line)
		categories.WriteString("\n")
		ids = append(ids, fmt.Sprintf("%d", c.ID))
	}

	return fmt.Sprintf(`You are a document classification expert. Analyze the document content and classify it into exactly one of these categories:

%s
Return a strict JSON object with keys:
category_id (integer, one of %s), confidence (number from 0 to 1), explanation (short string).
No markdown, no extra keys.`, categories.String(), strings.Join(ids, ", "))
}

func buildDocumentPrompt(text string) string {
	return documentPromptPrefix + text
}
