package ai

import (
	"errors"
	"fmt"
	"net/http"

	"smart-todo/internal/analytics"
	"smart-todo/internal/apiclient"
	"smart-todo/internal/auth"
	"smart-todo/internal/httpjson"
	"smart-todo/internal/observability"
)

type taskText struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// EnhanceHandler serves POST /enhance.
func EnhanceHandler(enh *Enhancer, rec analytics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body taskText
		if err := httpjson.Decode(r, &body); err != nil {
			httpjson.BadRequest(w, "invalid json")
			return
		}

		out, err := enh.Enhance(r.Context(), body.Title, body.Description)
		if err != nil {
			writeModelError(w, r, "enhance", err, func(status int) string {
				return fmt.Sprintf("Failed to connect to the local model. Status: %d. Check server logs for details.", status)
			}, "An internal server error occurred. Make sure your LM Studio server is running and the model is loaded.")
			return
		}

		rec.Record(r.Context(), analytics.FromRequest(r), analytics.EventTaskEnhanced, map[string]any{
			"had_description": body.Description != "",
		}, analytics.SourceEventKeyFromRequest(r))

		httpjson.Write(w, http.StatusOK, out)
	}
}

// SuggestTaskDetailsHandler serves POST /suggest-task-details. It must run
// behind the session middleware.
func SuggestTaskDetailsHandler(sug *Suggester, rec analytics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := auth.SessionFromContext(r.Context())
		if !ok {
			httpjson.Unauthorized(w)
			return
		}

		var body taskText
		if err := httpjson.Decode(r, &body); err != nil {
			httpjson.BadRequest(w, "invalid json")
			return
		}

		out, err := sug.Suggest(r.Context(), s.AccessToken, body.Title, body.Description)
		if err != nil {
			writeModelError(w, r, "suggest-task-details", err, func(int) string {
				return "Failed to get suggestions from the local model."
			}, "An internal server error occurred.")
			return
		}

		rec.Record(r.Context(), analytics.FromRequest(r), analytics.EventTaskDetailsSuggested, map[string]any{
			"category": out["category"],
			"priority": out["priority"],
		}, analytics.SourceEventKeyFromRequest(r))

		httpjson.Write(w, http.StatusOK, out)
	}
}

// writeModelError logs the full failure and answers with a fixed message.
// Only input errors and backend messages reach the caller verbatim.
func writeModelError(w http.ResponseWriter, r *http.Request, route string, err error, upstreamMsg func(status int) string, internalMsg string) {
	log := observability.LoggerFromContext(r.Context()).With("route", route)

	var inErr *InputError
	var upErr *UpstreamError
	var backendErr *apiclient.Error
	switch {
	case errors.As(err, &inErr):
		httpjson.BadRequest(w, inErr.Message)
	case errors.Is(err, apiclient.ErrUnauthenticated):
		httpjson.Unauthorized(w)
	case errors.As(err, &upErr):
		log.Error("model endpoint error", "status", upErr.StatusCode, "body", upErr.Body)
		httpjson.Error(w, http.StatusInternalServerError, upstreamMsg(upErr.StatusCode))
	case errors.As(err, &backendErr):
		// the backend's own message is already meant for users
		log.Error("backend lookup failed", "status", backendErr.StatusCode, "error", err)
		httpjson.Error(w, http.StatusInternalServerError, backendErr.Message)
	case errors.Is(err, ErrEmptyContent):
		httpjson.Error(w, http.StatusInternalServerError, "Received an empty response from the model.")
	case errors.Is(err, ErrNoJSONObject), errors.Is(err, ErrMalformedJSON):
		log.Warn("model output not usable", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "The model did not return a valid JSON object.")
	default:
		log.Error("relay failed", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, internalMsg)
	}
}
