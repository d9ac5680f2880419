package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JamesWemyss/psyclone/actions"
	"github.com/JamesWemyss/psyclone/agent"
	ctxpkg "github.com/JamesWemyss/psyclone/context"
	"github.com/JamesWemyss/psyclone/memory"
)

type messageRequest struct {
	Message string `json:"message" validate:"required"`
}

type idRequest struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

type updateTaskRequest struct {
	ID    int64           `json:"id" validate:"required,gt=0"`
	Patch json.RawMessage `json:"patch" validate:"required"`
}

type askBody struct {
	OK bool `json:"ok"`
	agent.AskResponse
}

// readMessage decodes a {"message": ...} body, answering 400 itself when it
// is missing.
func (s *Server) readMessage(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req messageRequest
	if err := s.decode(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Reason: "No message"})
		return "", false
	}
	return req.Message, true
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.readMessage(w, r)
	if !ok {
		return
	}
	resp, err := s.deps.Dispatcher.Ask(r.Context(), msg)
	if err != nil {
		s.failReason(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, askBody{OK: true, AskResponse: resp})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.readMessage(w, r)
	if !ok {
		return
	}
	resp, err := s.deps.Dispatcher.Chat(r.Context(), msg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"intent":  resp.Intent,
		"reply":   resp.Reply,
		"refresh": resp.Refresh,
	})
}

func (s *Server) assistant(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.readMessage(w, r)
	if !ok {
		return
	}
	ctx := ctxpkg.WithSource(r.Context(), "assistant")
	res, err := s.deps.Orchestrator.Run(ctx, msg)
	if err != nil {
		s.failReason(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"reply":      res.Reply,
		"turn_id":    res.TurnID,
		"state":      res.State,
		"iterations": res.Iterations,
		"tool_calls": res.ToolCalls,
	})
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := s.decode(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"saved": false, "reason": "No message"})
		return
	}
	out, err := s.deps.Dispatcher.Save(r.Context(), req.Message)
	if err != nil {
		s.logEvent(r, statusFor(err), err).Msg("Save failed")
		respondJSON(w, statusFor(err), map[string]any{"saved": false, "reason": err.Error()})
		return
	}
	if out.Status != actions.StatusSaved {
		respondJSON(w, http.StatusOK, map[string]any{"saved": false, "reason": out.Summary})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"saved": true, "id": out.ID, "summary": entityContent(out)})
}

func entityContent(out actions.Outcome) string {
	if item, ok := out.Entity.(memory.MemoryItem); ok {
		return item.Content
	}
	return out.Summary
}

func (s *Server) ignoreLast(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Executors.IgnoreLast(r.Context())
	if err != nil {
		s.failReason(w, r, err)
		return
	}
	if out.Status == actions.StatusNotFound {
		respondJSON(w, http.StatusNotFound, errorBody{Reason: out.Summary})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "summary": out.Summary})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var p actions.SearchParams
	if err := s.decode(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.deps.Executors.SearchMemoryItems(r.Context(), p, actions.MaxSearchLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "type": "results", "count": out.Count, "items": out.Items})
}

func (s *Server) lists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.deps.Executors.ListActive(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"goals":    lists.Goals,
		"personal": lists.Personal,
		"work":     lists.Work,
	})
}

func (s *Server) createGoal(w http.ResponseWriter, r *http.Request) {
	var p actions.CreateGoalParams
	if err := s.decode(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondOutcome(w, r, "goal")(s.deps.Executors.CreateGoal(r.Context(), p))
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var p actions.CreateTaskParams
	if err := s.decode(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondOutcome(w, r, "task")(s.deps.Executors.CreateTask(r.Context(), p))
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondOutcome(w, r, "task")(s.deps.Executors.CompleteTask(r.Context(), actions.TaskRefParams{ID: &req.ID}))
}

func (s *Server) reorderTask(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondOutcome(w, r, "task")(s.deps.Executors.ReorderTask(r.Context(), actions.TaskRefParams{ID: &req.ID}))
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	var p actions.UpdateTaskParams
	if err := json.Unmarshal(req.Patch, &p); err != nil {
		s.fail(w, r, &actions.ValidationError{Field: "patch", Message: err.Error()})
		return
	}
	p.ID = req.ID
	s.respondOutcome(w, r, "task")(s.deps.Executors.UpdateTask(r.Context(), p))
}

// respondOutcome writes {"ok": true, key: entity}, or 404 when the executor
// found nothing to act on.
func (s *Server) respondOutcome(w http.ResponseWriter, r *http.Request, key string) func(actions.Outcome, error) {
	return func(out actions.Outcome, err error) {
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if out.Status == actions.StatusNotFound {
			respondJSON(w, http.StatusNotFound, errorBody{Error: out.Summary})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, key: out.Entity, "summary": out.Summary})
	}
}

func (s *Server) searchContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	out, err := s.deps.Executors.SearchContacts(r.Context(), actions.SearchContactsParams{
		NameContains: q.Get("name"),
		Relation:     q.Get("relation"),
		Limit:        limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "count": out.Count, "items": out.Items})
}

func (s *Server) upsertContact(w http.ResponseWriter, r *http.Request) {
	var p actions.UpsertContactParams
	if err := s.decode(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondOutcome(w, r, "contact")(s.deps.Executors.UpsertContact(r.Context(), p))
}

func (s *Server) addKeyDate(w http.ResponseWriter, r *http.Request) {
	var p actions.KeyDateParams
	if err := s.decode(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondOutcome(w, r, "key_date")(s.deps.Executors.AddContactKeyDate(r.Context(), p))
}

func (s *Server) recentTurns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Turns == nil {
		respondJSON(w, http.StatusNotFound, errorBody{Error: "turn history is disabled"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	turns, err := s.deps.Turns.RecentTurns(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "turns": turns})
}

func (s *Server) turnTranscript(w http.ResponseWriter, r *http.Request) {
	if s.deps.Turns == nil {
		respondJSON(w, http.StatusNotFound, errorBody{Error: "turn history is disabled"})
		return
	}
	turnID := chi.URLParam(r, "turnID")
	turn, err := s.deps.Turns.GetTurn(r.Context(), turnID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.deps.Turns.Transcript(r.Context(), turnID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "turn": turn, "transcript": entries})
}
