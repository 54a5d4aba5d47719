package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/camnode/internal/agent"
)

// commandTimeout bounds how long a request waits on the agent.
const commandTimeout = 10 * time.Second

// CommandResponse is returned by state-changing endpoints.
type CommandResponse struct {
	Command string      `json:"command"`
	State   agent.State `json:"state"`
}

// SetIdentityRequest is the body of PUT /identity.
type SetIdentityRequest struct {
	SysID string `json:"sys_id"`
}

// SampleRequest is the body of POST /samples.
type SampleRequest struct {
	Distance *float64 `json:"distance"`
}

// commandByName maps POST /commands/{name} to agent commands.
var commandByName = map[string]func() agent.Command{
	"status": func() agent.Command { return agent.Status{} },
	"reset":  func() agent.Command { return agent.Reset{} },
	"delete": func() agent.Command { return agent.Delete{} },
	"sensor": func() agent.Command { return agent.SensorTest{} },
}

// handleGetDevice returns the agent's state.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	st, err := s.submit(r.Context(), agent.Snapshot{})
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleCommand runs one of the named operator commands.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(chi.URLParam(r, "name"))
	build, ok := commandByName[name]
	if !ok {
		writeNotFound(w, "unknown command: "+name)
		return
	}

	cmd := build()
	st, err := s.submit(r.Context(), cmd)
	if err != nil {
		s.logger.Debug("command rejected", "command", cmd.Name(), "error", err)
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Command: cmd.Name(), State: st})
}

// handleSetIdentity assigns the identifier by hand.
func (s *Server) handleSetIdentity(w http.ResponseWriter, r *http.Request) {
	var req SetIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.SysID = strings.TrimSpace(req.SysID)
	if req.SysID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "sys_id is required")
		return
	}

	cmd := agent.AssignID{ID: req.SysID}
	st, err := s.submit(r.Context(), cmd)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Command: cmd.Name(), State: st})
}

// handleSample feeds one distance to the proximity detector.
func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	var req SampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Distance == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "distance is required")
		return
	}

	cmd := agent.Sample{Distance: *req.Distance}
	st, err := s.submit(r.Context(), cmd)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Command: cmd.Name(), State: st})
}

func (s *Server) submit(ctx context.Context, cmd agent.Command) (agent.State, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return s.agent.Submit(ctx, cmd)
}

// writeAgentError maps agent errors to HTTP statuses.
func writeAgentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrInvalidDistance), errors.Is(err, agent.ErrMissingIdentifier),
		errors.Is(err, agent.ErrInvalidIdentifier):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, agent.ErrNotPaired), errors.Is(err, agent.ErrNoThreshold), errors.Is(err, agent.ErrAlreadyPaired):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, agent.ErrStopped), errors.Is(err, agent.ErrBusy),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
