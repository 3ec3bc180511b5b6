package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hupe1980/agentgate/api"
	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/dispatch"
	"github.com/hupe1980/agentgate/logging"
	"github.com/hupe1980/agentgate/stream"
)

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	var names []string
	if s.models != nil {
		names = s.models.Names()
	}
	writeJSON(w, http.StatusOK, api.NewModelList(names, s.started.Unix()))
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req api.ChatCompletionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, stream.ErrorTypeInvalidRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, stream.ErrorTypeInvalidRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	inv, err := s.dispatcher.Dispatch(r.Context(), dispatch.Request{
		Model:    req.Model,
		Messages: req.CoreMessages(),
		Options:  req.GenerationOptions(),
	})
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	defer inv.Cancel()

	logger := logging.With(s.logger,
		"request_id", middleware.GetReqID(r.Context()),
		"invocation", inv.ID,
		"agent", inv.Agent,
		"model", inv.Model,
	)

	id := api.NewCompletionID()
	created := inv.Created.Unix()

	if req.Stream {
		s.streamCompletion(w, r, inv, id, created, req.IncludeUsage(), logger)
		return
	}

	result, err := stream.Aggregate(r.Context(), inv.Events)
	if err != nil {
		if r.Context().Err() != nil {
			logger.Info("chat.client_gone")
			return
		}
		logger.Warn("chat.failed", "error", err.Error())
		body := stream.Classify(err)
		writeErrorBody(w, errorStatus(err), body)
		return
	}

	writeJSON(w, http.StatusOK, api.NewChatCompletion(id, created, inv.Model, result.Text, result.Usage))
}

func (s *Server) streamCompletion(
	w http.ResponseWriter,
	r *http.Request,
	inv *dispatch.Invocation,
	id string,
	created int64,
	includeUsage bool,
	logger logging.Logger,
) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := stream.NewWriter(w, func() { _ = rc.Flush() }, id, created, inv.Model, func(o *stream.WriterOptions) {
		o.ToolEvents = s.opts.ToolEvents
		o.IncludeUsage = includeUsage
		o.Logger = logger
	})

	err := sw.Stream(r.Context(), inv.Events)
	switch {
	case err == nil:
		logger.Debug("chat.stream.completed")
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		logger.Info("chat.client_gone")
	default:
		logger.Warn("chat.stream.failed", "error", err.Error())
	}
}

func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrMalformedHistory):
		writeError(w, http.StatusBadRequest, stream.ErrorTypeInvalidRequest, err.Error())
	case errors.Is(err, core.ErrAgentNotFound):
		writeError(w, http.StatusNotFound, stream.ErrorTypeNotFound, err.Error())
	default:
		s.logger.Error("chat.dispatch_failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, stream.ErrorTypeServer, err.Error())
	}
}

// errorStatus maps an agent failure to the status of a non-streaming
// response.
func errorStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeErrorBody(w, status, api.ErrorBody{Message: message, Type: errType})
}

func writeErrorBody(w http.ResponseWriter, status int, body api.ErrorBody) {
	writeJSON(w, status, api.ErrorResponse{Error: body})
}
