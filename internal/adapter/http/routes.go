package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. mw is
// applied to the /api/v1 group only, so health probes bypass it.
func MountRoutes(r chi.Router, h *Handlers, mw ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw...)

		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Static pipelines
		r.Get("/pipelines", h.ListPipelines)
		r.Post("/pipelines/{name}/invoke", h.InvokePipeline)

		// Dynamic executions
		r.Get("/executions", h.ListExecutions)
		r.Post("/executions", h.SubmitPlan)
		r.Post("/executions/plan", h.PlanAndSubmit)
		r.Get("/executions/{id}", h.GetExecution)
		r.Post("/executions/{id}/approve", h.ApproveExecution)
		r.Post("/executions/{id}/reject", h.RejectExecution)

		// Agent registry
		r.Get("/agents", h.ListAgents)
		r.Post("/agents", h.RegisterAgent)
		r.Delete("/agents/{name}", h.DeleteAgent)
	})
}
