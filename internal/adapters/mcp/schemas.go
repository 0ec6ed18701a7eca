package mcpadapter

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func queryFundsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_funds",
		Description: "Answer a natural-language question about mutual funds using hybrid retrieval and a generated answer",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The question to answer",
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Retrieval strategy",
					"enum":        []string{"lexical", "semantic", "hybrid"},
					"default":     "hybrid",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Number of sources to retrieve (1-20)",
					"default":     5,
					"minimum":     1,
					"maximum":     20,
				},
			},
			Required: []string{"query"},
		},
	}
}

func searchFundsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_funds",
		Description: "Retrieve ranked fund and FAQ documents for a query without generating an answer",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The search query",
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Retrieval strategy",
					"enum":        []string{"lexical", "semantic", "hybrid"},
					"default":     "hybrid",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Number of sources to retrieve (1-20)",
					"default":     5,
					"minimum":     1,
					"maximum":     20,
				},
				"source_filter": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one corpus slice",
					"enum":        []string{"faq", "structured_record"},
				},
			},
			Required: []string{"query"},
		},
	}
}

func indexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_status",
		Description: "Report the retrieval index lifecycle state and indexed document count",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
