package http

import (
	"context"
	"net/http"
)

// ---------------------------------------------------------------------------
// Generic handler factories
// ---------------------------------------------------------------------------

// handleList creates a handler that returns a snapshot list as JSON.
func handleList[T any](listFn func() []T) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		items := listFn()
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// handleGet creates a handler that retrieves a single resource by the URL
// parameter param.
func handleGet[T any](param string, getFn func(ctx context.Context, id string) (*T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := getFn(r.Context(), urlParam(r, param))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// handleDecision creates a handler for a reviewer decision on the
// execution named by the "id" URL parameter. The body, if any, is decoded
// into Req.
func handleDecision[Req any, Res any](status int, decideFn func(ctx context.Context, id string, req Req) (*Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readOptionalJSON[Req](w, r)
		if !ok {
			return
		}
		res, err := decideFn(r.Context(), urlParam(r, "id"), req)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, status, res)
	}
}
