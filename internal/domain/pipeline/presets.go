package pipeline

// BuiltinPipelines returns the pipelines that ship with the service. Their
// agents are provided by the built-in agent definitions.
func BuiltinPipelines() []Pipeline {
	return []Pipeline{
		triage(),
		changeRequest(),
	}
}

// triage classifies an incoming request and drafts a reply:
// classify → draft-reply
func triage() Pipeline {
	return Pipeline{
		Name:        "triage",
		Description: "Classify an incoming request, then draft a reply for it.",
		Builtin:     true,
		Agents:      []string{"classify", "draft-reply"},
	}
}

// changeRequest gathers data, asks a human, and applies the change:
// fetch-data → needs-approval → apply-change → announce-change
func changeRequest() Pipeline {
	return Pipeline{
		Name:        "change-request",
		Description: "Fetch the affected record, gate on human approval, apply and announce the change.",
		Builtin:     true,
		Agents:      []string{"fetch-data", "needs-approval", "apply-change", "announce-change"},
	}
}
