package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/JamesWemyss/psyclone/actions"
	"github.com/JamesWemyss/psyclone/agent"
	"github.com/JamesWemyss/psyclone/conversations"
	"github.com/JamesWemyss/psyclone/memory"
)

const maxBodyBytes = 1 << 20

// errorBody is the failure envelope. Conversational surfaces report a
// reason, CRUD surfaces an error.
type errorBody struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
	TurnID string `json:"turn_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &actions.ValidationError{Field: "body", Message: err.Error()}
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &actions.ValidationError{Field: fe.Field(), Message: fmt.Sprintf("failed %s", fe.Tag())}
		}
		return &actions.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var te *agent.TurnError
	switch {
	case actions.IsValidationError(err):
		return http.StatusBadRequest
	case errors.As(err, &te) && te.State == agent.StateTimedOut:
		return http.StatusGatewayTimeout
	case errors.Is(err, memory.ErrTaskNotFound), errors.Is(err, conversations.ErrTurnNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes a CRUD-style error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logEvent(r, status, err).Msg("Request failed")
	respondJSON(w, status, errorBody{Error: err.Error()})
}

// failReason writes a conversational error. Turn errors carry the short
// user-facing message and the turn id.
func (s *Server) failReason(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logEvent(r, status, err).Msg("Request failed")

	body := errorBody{Reason: err.Error()}
	var te *agent.TurnError
	if errors.As(err, &te) {
		body.Reason = te.UserMessage()
		body.TurnID = te.TurnID
	}
	respondJSON(w, status, body)
}

func (s *Server) logEvent(r *http.Request, status int, err error) *zerolog.Event {
	ev := s.logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.logger.Error()
	}
	return ev.Err(err).Str("path", r.URL.Path).Int("status", status)
}
