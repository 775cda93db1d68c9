package a2a

import (
	"net/http"
	"strings"

	a2alib "github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
)

// DefaultPath is where the JSON-RPC endpoint is mounted.
const DefaultPath = "/a2a"

// BuildAgentCard describes the service with one skill per pipeline.
// baseURL is the externally reachable root of the service.
func BuildAgentCard(name, version, baseURL string, runner PipelineRunner) *a2alib.AgentCard {
	var skills []a2alib.AgentSkill
	for _, p := range runner.Pipelines() {
		skills = append(skills, a2alib.AgentSkill{
			ID:          p.Name,
			Name:        p.Name,
			Description: p.Description,
			Tags:        append([]string{"pipeline"}, p.Agents...),
		})
	}
	return &a2alib.AgentCard{
		Name:               name,
		Description:        "Runs agent pipelines. Set message metadata \"" + MetaPipeline + "\" to a skill id; data parts become the initial context.",
		URL:                strings.TrimRight(baseURL, "/") + DefaultPath,
		Version:            version,
		ProtocolVersion:    "0.3.0",
		DefaultInputModes:  []string{"application/json", "text/plain"},
		DefaultOutputModes: []string{"application/json"},
		Skills:             skills,
		PreferredTransport: a2alib.TransportProtocolJSONRPC,
	}
}

// MountRoutes registers the agent card and the JSON-RPC endpoint at the
// router root.
func MountRoutes(r chi.Router, card *a2alib.AgentCard, exec *Executor, mw ...func(http.Handler) http.Handler) {
	r.Get(a2asrv.WellKnownAgentCardPath, a2asrv.NewStaticAgentCardHandler(card).ServeHTTP)
	r.With(mw...).Handle(DefaultPath, a2asrv.NewJSONRPCHandler(a2asrv.NewHandler(exec)))
}
