package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sapliy/staff-notify/internal/auth"
	"github.com/sapliy/staff-notify/internal/compose"
	"github.com/sapliy/staff-notify/internal/directory"
	"github.com/sapliy/staff-notify/internal/draft"
	"github.com/sapliy/staff-notify/internal/notification"
	"github.com/sapliy/staff-notify/internal/policy"
	"github.com/sapliy/staff-notify/internal/portal"
	"github.com/sapliy/staff-notify/pkg/jsonutil"
	"go.uber.org/zap"
)

type NotifyServer struct {
	svc       *notification.Service
	directory notification.Directory
	drafts    *draft.Store
	policy    *policy.PolicyMiddleware
	auth      *auth.Authenticator
	hub       *portal.Hub
	loc       *time.Location
	logger    *zap.Logger
	healthy   func() map[string]bool
}

// authorize checks the caller's roles against action and writes the error
// response when refused.
func (s *NotifyServer) authorize(w http.ResponseWriter, r *http.Request, action policy.Action, resource map[string]interface{}) (*auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		jsonutil.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	err := s.policy.Check(r.Context(), &policy.PolicyContext{
		UserID:   p.Subject,
		Roles:    p.Roles,
		Resource: resource,
		Action:   action,
	})
	if err != nil {
		if errors.Is(err, policy.ErrDenied) {
			jsonutil.WriteError(w, http.StatusForbidden, err.Error())
		} else {
			s.logger.Error("policy evaluation failed", zap.Error(err))
			jsonutil.WriteError(w, http.StatusInternalServerError, "Policy evaluation failed")
		}
		return nil, false
	}
	return p, true
}

func (s *NotifyServer) Health(w http.ResponseWriter, r *http.Request) {
	deps := map[string]bool{}
	if s.healthy != nil {
		deps = s.healthy()
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "active",
		"service":      "notifyd",
		"dependencies": deps,
	})
}

func (s *NotifyServer) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, policy.ActionNotificationRead, nil); !ok {
		return
	}

	criteria, err := notification.ParseCriteria(r.URL.Query(), s.loc)
	if err != nil {
		jsonutil.WriteErrorJSON(w, err.Error())
		return
	}

	items, err := s.svc.History(r.Context(), criteria)
	if err != nil {
		s.logger.Error("failed to load history", zap.Error(err))
		jsonutil.WriteError(w, http.StatusInternalServerError, "Failed to load notifications")
		return
	}

	jsonutil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": items,
		"count":         len(items),
	})
}

func (s *NotifyServer) CreateNotification(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, policy.ActionNotificationSend, nil)
	if !ok {
		return
	}

	var form compose.Form
	if err := jsonutil.DecodeJSON(r, &form); err != nil {
		jsonutil.WriteErrorJSON(w, "Invalid request body")
		return
	}

	n, err := compose.Submit(r.Context(), &form, p.Name, s.svc.Send)
	if err != nil {
		var verr *compose.ValidationError
		if errors.As(err, &verr) {
			jsonutil.WriteJSON(w, http.StatusBadRequest, verr)
			return
		}
		s.logger.Error("failed to send notification", zap.Error(err))
		jsonutil.WriteError(w, http.StatusInternalServerError, "Failed to send notification")
		return
	}

	jsonutil.WriteJSON(w, http.StatusCreated, n)
}

func (s *NotifyServer) GetNotification(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, policy.ActionNotificationRead, nil); !ok {
		return
	}

	n, err := s.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, n)
}

func (s *NotifyServer) ExportResponses(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.authorize(w, r, policy.ActionNotificationExport, map[string]interface{}{"notification_id": id}); !ok {
		return
	}

	n, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", notification.ExportFilename(n.Title)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(notification.ExportResponsesCSV(n)))
}

type acknowledgeRequest struct {
	Option  string `json:"option"`
	Comment string `json:"comment,omitempty"`
}

// Acknowledge records the caller's own response; the recipient is the
// directory name carried in the token.
func (s *NotifyServer) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, ok := s.authorize(w, r, policy.ActionNotificationAcknowledge, map[string]interface{}{"notification_id": id})
	if !ok {
		return
	}

	var req acknowledgeRequest
	if err := jsonutil.DecodeJSON(r, &req); err != nil {
		jsonutil.WriteErrorJSON(w, "Invalid request body")
		return
	}

	n, err := s.svc.Acknowledge(r.Context(), id, notification.AcknowledgementResponse{
		Recipient: p.Name,
		Option:    req.Option,
		Comment:   req.Comment,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, n)
}

func (s *NotifyServer) ListEmployees(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, policy.ActionDirectoryRead, nil); !ok {
		return
	}

	all := s.directory.List(r.Context())
	q := r.URL.Query()
	employees := directory.Filter(all, directory.Criteria{
		Query:      q.Get("q"),
		Department: q.Get("department"),
		Status:     q.Get("status"),
	})

	jsonutil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"employees":   employees,
		"departments": directory.Departments(all),
	})
}

func (s *NotifyServer) ListDrafts(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, policy.ActionDraftWrite, nil)
	if !ok {
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"drafts": s.drafts.Load(r.Context(), p.Subject),
	})
}

func (s *NotifyServer) SaveDraft(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, policy.ActionDraftWrite, nil)
	if !ok {
		return
	}

	var d draft.Draft
	if err := jsonutil.DecodeJSON(r, &d); err != nil {
		jsonutil.WriteErrorJSON(w, "Invalid request body")
		return
	}

	saved, drafts, err := s.drafts.Save(r.Context(), p.Subject, d)
	if err != nil {
		s.logger.Error("failed to save draft", zap.Error(err))
		jsonutil.WriteError(w, http.StatusInternalServerError, "Failed to save draft")
		return
	}
	jsonutil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"draft":  saved,
		"drafts": drafts,
	})
}

func (s *NotifyServer) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, policy.ActionDraftWrite, nil)
	if !ok {
		return
	}

	drafts, err := s.drafts.Delete(r.Context(), p.Subject, mux.Vars(r)["id"])
	if err != nil {
		s.logger.Error("failed to delete draft", zap.Error(err))
		jsonutil.WriteError(w, http.StatusInternalServerError, "Failed to delete draft")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]interface{}{"drafts": drafts})
}

// PortalWebSocket streams portal messages addressed to the caller.
func (s *NotifyServer) PortalWebSocket(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		jsonutil.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	s.hub.ServeWS(w, r, p.Name)
}

func (s *NotifyServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notification.ErrNotFound):
		jsonutil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, notification.ErrAcknowledgementNotRequired):
		jsonutil.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, notification.ErrUnknownRecipient):
		jsonutil.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, notification.ErrInvalidOption), errors.Is(err, notification.ErrCommentsDisabled):
		jsonutil.WriteErrorJSON(w, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		jsonutil.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func setupRoutes(s *NotifyServer, serveMetrics bool) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.Health).Methods("GET")
	if serveMetrics {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	api := r.NewRoute().Subrouter()
	api.Use(s.auth.Middleware)

	api.HandleFunc("/notifications", s.ListNotifications).Methods("GET")
	api.HandleFunc("/notifications", s.CreateNotification).Methods("POST")
	api.HandleFunc("/notifications/{id}", s.GetNotification).Methods("GET")
	api.HandleFunc("/notifications/{id}/responses.csv", s.ExportResponses).Methods("GET")
	api.HandleFunc("/notifications/{id}/acknowledgements", s.Acknowledge).Methods("POST")

	api.HandleFunc("/employees", s.ListEmployees).Methods("GET")

	api.HandleFunc("/drafts", s.ListDrafts).Methods("GET")
	api.HandleFunc("/drafts", s.SaveDraft).Methods("POST")
	api.HandleFunc("/drafts/{id}", s.DeleteDraft).Methods("DELETE")

	api.HandleFunc("/ws", s.PortalWebSocket).Methods("GET")

	return r
}
