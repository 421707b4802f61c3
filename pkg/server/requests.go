package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/zen-systems/switchboard/pkg/agent"
)

const maxBodyBytes = 1 << 20

type routeRequest struct {
	Text            string `json:"text" validate:"required,max=8000"`
	CurrentAgent    string `json:"current_agent" validate:"omitempty,agent_role"`
	ForceClassifier bool   `json:"force_classifier"`
}

type decideRequest struct {
	Text         string `json:"text" validate:"required,max=8000"`
	CurrentAgent string `json:"current_agent" validate:"required,agent_role"`
}

// Roles on execute are resolved by the handoff protocol so that unknown
// names come back as a typed failure.
type executeRequest struct {
	From        string         `json:"from" validate:"required"`
	TargetAgent string         `json:"target_agent" validate:"required"`
	Reason      string         `json:"reason" validate:"max=2000"`
	Context     map[string]any `json:"context"`
	Message     string         `json:"message" validate:"max=8000"`
	UserID      string         `json:"user_id"`
	ThreadID    string         `json:"thread_id" validate:"max=128"`
}

type feedbackRequest struct {
	OriginalQuery     string  `json:"original_query" validate:"required,max=8000"`
	SelectedAgent     string  `json:"selected_agent" validate:"required,agent_role"`
	RoutingConfidence float64 `json:"routing_confidence" validate:"gte=0,lte=1"`
	RoutingSource     string  `json:"routing_source" validate:"required"`
	FeedbackType      string  `json:"feedback_type" validate:"required"`
	CorrectAgent      string  `json:"correct_agent" validate:"omitempty,agent_role"`
	UserComment       string  `json:"user_comment" validate:"max=2000"`
}

func (f feedbackRequest) toEntry() (agent.FeedbackEntry, error) {
	selected, err := agent.ParseAgentRole(f.SelectedAgent)
	if err != nil {
		return agent.FeedbackEntry{}, err
	}
	source, err := agent.ParseSource(f.RoutingSource)
	if err != nil {
		return agent.FeedbackEntry{}, err
	}
	ft, err := agent.ParseFeedbackType(f.FeedbackType)
	if err != nil {
		return agent.FeedbackEntry{}, err
	}
	entry := agent.FeedbackEntry{
		OriginalQuery:     f.OriginalQuery,
		SelectedAgent:     selected,
		RoutingConfidence: f.RoutingConfidence,
		RoutingSource:     source,
		FeedbackType:      ft,
		UserComment:       f.UserComment,
	}
	if f.CorrectAgent != "" {
		correct, err := agent.ParseAgentRole(f.CorrectAgent)
		if err != nil {
			return agent.FeedbackEntry{}, err
		}
		entry.CorrectAgent = &correct
	}
	return entry, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("agent_role", func(fl validator.FieldLevel) bool {
		_, err := agent.ParseAgentRole(fl.Field().String())
		return err == nil
	})
	return v
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

type errorResponse struct {
	Error  string       `json:"error"`
	Fields []fieldError `json:"fields,omitempty"`
}

// decode reads and validates a JSON body. It writes the error response
// itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			resp := errorResponse{Error: "validation failed"}
			for _, fe := range verrs {
				resp.Fields = append(resp.Fields, fieldError{Field: fe.Field(), Rule: fe.Tag()})
			}
			writeJSON(w, http.StatusBadRequest, resp)
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
