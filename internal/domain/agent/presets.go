package agent

// Agent kinds shipped with the service.
const (
	KindStatic   = "static"
	KindApproval = "approval"
	KindLLM      = "llm"
	KindPublish  = "publish"
)

// BuiltinDefinitions returns the agents referenced by the built-in
// pipelines. Operators may override any of them by name in the agents file.
func BuiltinDefinitions() []Definition {
	return []Definition{
		{
			Name:        "classify",
			Kind:        KindLLM,
			Description: "Classify a free-text request into a category and priority.",
			Requires:    []string{"request"},
			Config: map[string]string{
				"system": "You triage incoming requests. Answer with a JSON object only.",
				"prompt": "Classify this request. Respond as {\"category\": \"bug|feature|question\", \"priority\": \"low|medium|high\"}.\n\n{{.request}}",
				"format": "json",
			},
		},
		{
			Name:        "draft-reply",
			Kind:        KindLLM,
			Description: "Draft a reply to a classified request.",
			Requires:    []string{"request", "category"},
			Config: map[string]string{
				"prompt":     "Write a short, polite reply to this {{.category}} request.\n\n{{.request}}",
				"output_key": "reply",
			},
		},
		{
			Name:        "fetch-data",
			Kind:        KindStatic,
			Description: "Load the record affected by a change request.",
			Config: map[string]string{
				"summary":       "record loaded",
				"record_loaded": "true",
			},
		},
		{
			Name:        "needs-approval",
			Kind:        KindApproval,
			Description: "Wait for a human to approve the change before it is applied.",
		},
		{
			Name:        "apply-change",
			Kind:        KindStatic,
			Description: "Apply the approved change.",
			Config: map[string]string{
				"summary":        "change applied",
				"change_applied": "true",
			},
		},
		{
			Name:        "announce-change",
			Kind:        KindPublish,
			Description: "Announce an applied change on the notify.changes subject.",
			Requires:    []string{"change_applied"},
			Config: map[string]string{
				"topic": "changes",
				"keys":  "ticket_id,change_applied",
			},
		},
	}
}
