package determine

// JSON schemas enforced on the reasoning service's structured output, one
// per phase. Kept shallow so schema-capable models accept them directly.

func discoverySchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"discovery_analysis": map[string]any{"type": "string"},
			"search_queries": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query":  map[string]any{"type": "string"},
						"aspect": map[string]any{"type": "string"},
					},
					"required": []string{"query"},
				},
			},
			"load_resources": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"expand_tools": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"discovery_analysis", "search_queries", "load_resources", "expand_tools"},
	}
}

func refinementSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"relevance_analysis": map[string]any{"type": "string"},
			"exclude_resources": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"exclude_properties": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"uri":      map[string]any{"type": "string"},
						"property": map[string]any{"type": "string"},
					},
					"required": []string{"uri", "property"},
				},
			},
			"collapse_tools": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"sorted_segments": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"relevance_analysis"},
	}
}

func decisionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"situation_analysis": map[string]any{"type": "string"},
			"decision_type": map[string]any{
				"type": "string",
				"enum": []string{string(KindExecute), string(KindFinalize)},
			},
			"execution": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tool":       map[string]any{"type": "string"},
					"parameters": map[string]any{"type": "object"},
					"confidence": map[string]any{"type": "number"},
					"reasoning":  map[string]any{"type": "string"},
				},
				"required": []string{"tool", "reasoning"},
			},
			"finalization": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{
						"type": "string",
						"enum": []string{"success", "failed", "incomplete", "abandoned"},
					},
					"response": map[string]any{"type": "string"},
					"evidence": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
					"gaps": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
				"required": []string{"status", "response"},
			},
		},
		"required": []string{"situation_analysis", "decision_type"},
	}
}

func reviewSchema() map[string]any {
	stringList := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"analysis": map[string]any{"type": "string"},
			"verdict": map[string]any{
				"type": "string",
				"enum": []string{string(VerdictApprove), string(VerdictRefine)},
			},
			"approval": map[string]any{"type": "string"},
			"refinement": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"finished_tasks":         stringList,
					"remaining_work_summary": map[string]any{"type": "string"},
					"required_context":       map[string]any{"type": "string"},
					"expected_actions":       map[string]any{"type": "string"},
					"boundary_conditions":    stringList,
					"exception_conditions":   stringList,
					"success_criteria":       stringList,
				},
				"required": []string{"remaining_work_summary"},
			},
		},
		"required": []string{"analysis", "verdict"},
	}
}
