package ollama

import (
	"fmt"
	"strings"

	"github.com/qonfido/fundrag/internal/core/domain"
)

func buildAnswerPrompt(question string, sources []domain.RankedSource) string {
	var contextBuilder strings.Builder
	for idx, src := range sources {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] (%s)%s\n%s\n\n",
			idx+1,
			src.SourceKind,
			sourceAttribution(src.Metadata),
			src.Text,
		))
	}

	return fmt.Sprintf(`You are a mutual fund research assistant.
Answer the question using only the numbered context blocks below.
Cite blocks like [1] when you use them. Quote metric values exactly as
written; never invent numbers. If the context does not contain the
answer, say so directly.

Question:
%s

Context:
%s`, question, contextBuilder.String())
}

func sourceAttribution(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	parts := make([]string, 0, 2)
	if name := metadata["fund_name"]; name != "" {
		parts = append(parts, "Fund: "+name)
	}
	if sharpe := metadata["sharpe_ratio"]; sharpe != "" {
		parts = append(parts, "Sharpe: "+sharpe)
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, " | ") + "]"
}
