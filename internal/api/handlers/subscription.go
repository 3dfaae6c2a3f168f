// Package handlers provides HTTP handlers for the subscription API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/meridianrx/rxsub/internal/api/middleware"
	"github.com/meridianrx/rxsub/internal/domain/subscription"
	"github.com/meridianrx/rxsub/internal/observability/metrics"
	"github.com/meridianrx/rxsub/internal/storage"
)

// SubscriptionHandler handles subscription endpoints. Every write follows
// read-transform-write against the store; the last writer wins.
type SubscriptionHandler struct {
	store   storage.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewSubscriptionHandler creates a new handler
func NewSubscriptionHandler(store storage.Store, m *metrics.Metrics, logger *zap.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionHandler{store: store, metrics: m, logger: logger}
}

// Routes returns the handler routes
func (h *SubscriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/hold", h.Hold)
	r.Post("/{id}/resume", h.Resume)
	r.Get("/{id}/log", h.Log)
	r.Post("/{id}/log", h.AppendLog)
	r.Post("/{id}/fulfillments/{fulfillmentID}/transition", h.Transition)
	r.Post("/{id}/transitions", h.TransitionByDate)
	return r
}

// CreateRequest is the request body for creating a subscription
type CreateRequest struct {
	PatientName string     `json:"patient_name"`
	DrugName    string     `json:"drug_name"`
	Duration    int        `json:"duration"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	RxID        string     `json:"rx_id"`
	NewRxCall   bool       `json:"new_rx_call"`
}

// SubscriptionResponse wraps a record with its derived status and display
// metadata.
type SubscriptionResponse struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Derived      subscription.Derivation    `json:"derived"`
	Meta         subscription.StatusMeta    `json:"meta"`
}

// TransitionRequest is the request body for a fulfillment transition
type TransitionRequest struct {
	Status   string `json:"status"`
	Tracking string `json:"tracking,omitempty"`
}

// TransitionByDateRequest addresses a fulfillment by its exact date value
// for callers that do not hold fulfillment IDs.
type TransitionByDateRequest struct {
	FulfillmentDate time.Time `json:"fulfillment_date"`
	Status          string    `json:"status"`
	Tracking        string    `json:"tracking,omitempty"`
}

// TransitionResponse returns the updated record together with the log
// entry the transition appended.
type TransitionResponse struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Derived      subscription.Derivation    `json:"derived"`
	Entry        *subscription.LogEntry     `json:"entry"`
}

// UpdateRequest carries the PATCH-able administrative fields. Absent
// fields are left unchanged.
type UpdateRequest struct {
	NewRxCall       *bool   `json:"new_rx_call,omitempty"`
	PhysicianStatus *string `json:"physician_status,omitempty"`
}

// AppendLogRequest is the request body for a staff note
type AppendLogRequest struct {
	Message string `json:"message"`
}

// Create handles POST /subscriptions
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("subscription-handler")
	ctx, span := tracer.Start(ctx, "create_subscription")
	defer span.End()

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.PatientName == "" {
		h.jsonError(w, "patient_name is required", http.StatusBadRequest)
		return
	}
	if req.DrugName == "" {
		h.jsonError(w, "drug_name is required", http.StatusBadRequest)
		return
	}

	params := subscription.NewParams{
		PatientName: req.PatientName,
		DrugName:    req.DrugName,
		Duration:    req.Duration,
		RxID:        req.RxID,
		NewRxCall:   req.NewRxCall,
	}
	if req.StartDate != nil {
		params.StartDate = req.StartDate.UTC()
	}

	sub, err := subscription.New(params)
	if err != nil {
		if errors.Is(err, subscription.ErrInvalidDuration) {
			h.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("create failed", zap.Error(err))
		h.jsonError(w, "failed to create subscription", http.StatusInternalServerError)
		return
	}
	span.SetAttributes(attribute.String("subscription_id", sub.ID))

	if err := h.store.Create(ctx, sub); err != nil {
		h.storeError(w, err)
		return
	}

	h.metrics.SubscriptionsCreated.Inc()
	h.logger.Info("subscription created",
		zap.String("id", sub.ID),
		zap.String("drug", sub.DrugName),
		zap.Int("duration", sub.Duration),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	h.respond(w, http.StatusCreated, h.view(sub))
}

// List handles GET /subscriptions. Records come back in storage order; the
// board service owns actionable ordering.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("list failed", zap.Error(err))
		h.jsonError(w, "failed to list subscriptions", http.StatusInternalServerError)
		return
	}

	views := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		views = append(views, h.view(sub))
	}
	h.respond(w, http.StatusOK, views)
}

// Get handles GET /subscriptions/{id}
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, h.view(sub))
}

// Update handles PATCH /subscriptions/{id}. Only administrative fields are
// PATCH-able; fulfillment state moves through transitions.
func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var physician subscription.PhysicianStatus
	if req.PhysicianStatus != nil {
		parsed, err := subscription.ParsePhysicianStatus(*req.PhysicianStatus)
		if err != nil {
			h.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		physician = parsed
	}

	sub, err := h.store.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err)
		return
	}

	if req.NewRxCall != nil && *req.NewRxCall != sub.NewRxCall {
		sub.NewRxCall = *req.NewRxCall
		if sub.NewRxCall {
			sub.AppendLog("New RX call flagged", subscription.ActorStaff)
		} else {
			sub.AppendLog("New RX call flag cleared", subscription.ActorStaff)
		}
	}

	if req.PhysicianStatus != nil && physician != sub.PhysicianStatus {
		sub.PhysicianStatus = physician
		sub.AppendLog("Physician status changed to "+string(physician), subscription.ActorSystem)
		// Physician approval promotes a still-pending subscription.
		if physician == subscription.PhysicianApproved && sub.Status == subscription.StatusPending {
			sub.Status = subscription.StatusApproved
		}
	}

	if err := h.store.Put(ctx, sub); err != nil {
		h.storeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, h.view(sub))
}

// Delete handles DELETE /subscriptions/{id}
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.storeError(w, err)
		return
	}

	h.metrics.SubscriptionsDeleted.Inc()
	h.logger.Info("subscription deleted",
		zap.String("id", id),
		zap.String("request_id", middleware.GetRequestID(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

// Hold handles POST /subscriptions/{id}/hold
func (h *SubscriptionHandler) Hold(w http.ResponseWriter, r *http.Request) {
	h.withSubscription(w, r, func(sub *subscription.Subscription) (*subscription.LogEntry, error) {
		return sub.Hold(), nil
	})
}

// Resume handles POST /subscriptions/{id}/resume. The subscription drops
// back to its derived status immediately.
func (h *SubscriptionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.withSubscription(w, r, func(sub *subscription.Subscription) (*subscription.LogEntry, error) {
		entry := sub.Resume()
		sub.Status = sub.DeriveStatus()
		return entry, nil
	})
}

// Log handles GET /subscriptions/{id}/log, newest entry first.
func (h *SubscriptionHandler) Log(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, subscription.DisplayOrder(sub.CommunicationLog))
}

// AppendLog handles POST /subscriptions/{id}/log
func (h *SubscriptionHandler) AppendLog(w http.ResponseWriter, r *http.Request) {
	var req AppendLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		h.jsonError(w, "message is required", http.StatusBadRequest)
		return
	}

	h.withSubscription(w, r, func(sub *subscription.Subscription) (*subscription.LogEntry, error) {
		return sub.AppendLog(req.Message, subscription.ActorStaff), nil
	})
}

// Transition handles POST /subscriptions/{id}/fulfillments/{fulfillmentID}/transition
func (h *SubscriptionHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	status, err := subscription.ParseFulfillmentStatus(req.Status)
	if err != nil {
		h.metrics.TransitionsRejected.Inc()
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if status == subscription.FulfillmentShipped && req.Tracking == "" {
		h.metrics.TransitionsRejected.Inc()
		h.jsonError(w, subscription.ErrTrackingRequired.Error(), http.StatusBadRequest)
		return
	}

	fulfillmentID := chi.URLParam(r, "fulfillmentID")
	h.withSubscription(w, r, func(sub *subscription.Subscription) (*subscription.LogEntry, error) {
		entry, err := sub.ApplyTransition(fulfillmentID, status, req.Tracking)
		if err != nil {
			h.metrics.TransitionsRejected.Inc()
			return nil, err
		}
		sub.Status = sub.DeriveStatus()
		h.metrics.TransitionsApplied.WithLabelValues(string(status)).Inc()
		return entry, nil
	})
}

// TransitionByDate handles POST /subscriptions/{id}/transitions
func (h *SubscriptionHandler) TransitionByDate(w http.ResponseWriter, r *http.Request) {
	var req TransitionByDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	status, err := subscription.ParseFulfillmentStatus(req.Status)
	if err != nil {
		h.metrics.TransitionsRejected.Inc()
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if status == subscription.FulfillmentShipped && req.Tracking == "" {
		h.metrics.TransitionsRejected.Inc()
		h.jsonError(w, subscription.ErrTrackingRequired.Error(), http.StatusBadRequest)
		return
	}

	h.withSubscription(w, r, func(sub *subscription.Subscription) (*subscription.LogEntry, error) {
		entry, err := sub.ApplyTransitionByDate(req.FulfillmentDate, status, req.Tracking)
		if err != nil {
			h.metrics.TransitionsRejected.Inc()
			return nil, err
		}
		sub.Status = sub.DeriveStatus()
		h.metrics.TransitionsApplied.WithLabelValues(string(status)).Inc()
		return entry, nil
	})
}

// withSubscription runs a read-transform-write cycle: load the record,
// apply the mutation, persist the whole record back, and respond with the
// result. Domain lookups that miss map to 404.
func (h *SubscriptionHandler) withSubscription(w http.ResponseWriter, r *http.Request, mutate func(*subscription.Subscription) (*subscription.LogEntry, error)) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	sub, err := h.store.Get(ctx, id)
	if err != nil {
		h.storeError(w, err)
		return
	}

	entry, err := mutate(sub)
	if err != nil {
		if errors.Is(err, subscription.ErrFulfillmentNotFound) {
			h.jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.Put(ctx, sub); err != nil {
		h.storeError(w, err)
		return
	}

	// Every mutation in this cycle appends exactly one log entry.
	h.metrics.LogEntriesAppended.Inc()
	h.logger.Info("subscription updated",
		zap.String("id", sub.ID),
		zap.String("status", string(sub.Status)),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	h.respond(w, http.StatusOK, TransitionResponse{
		Subscription: sub,
		Derived:      sub.Derive(),
		Entry:        entry,
	})
}

func (h *SubscriptionHandler) view(sub *subscription.Subscription) SubscriptionResponse {
	derived := sub.Derive()
	return SubscriptionResponse{
		Subscription: sub,
		Derived:      derived,
		Meta:         derived.Status.Meta(),
	}
}

func (h *SubscriptionHandler) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.jsonError(w, "subscription not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrAlreadyExists):
		h.jsonError(w, "subscription already exists", http.StatusConflict)
	default:
		h.logger.Error("store operation failed", zap.Error(err))
		h.jsonError(w, "storage failure", http.StatusInternalServerError)
	}
}

func (h *SubscriptionHandler) respond(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func (h *SubscriptionHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
