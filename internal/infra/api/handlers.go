package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"collective-ledger/internal/domain"
	"collective-ledger/internal/domain/model"
	"collective-ledger/internal/usecase"
)

const maxListLimit = 500

func pathInt64(r *http.Request, name string) (int64, error) {
	var v int64
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: path parameter %s", domain.ErrInvalidArgument, name)
	}
	return v, nil
}

func pathGroup(r *http.Request) (uuid.UUID, error) {
	g, err := uuid.Parse(chi.URLParam(r, "group"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: transaction group", domain.ErrInvalidArgument)
	}
	return g, nil
}

func queryParam(r *http.Request, name string, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dest); err != nil {
		return fmt.Errorf("%w: query parameter %s", domain.ErrInvalidArgument, name)
	}
	return nil
}

func decodeBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: request body required", domain.ErrInvalidArgument)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func (s *Server) actor(r *http.Request) model.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}

func (s *Server) listAccountTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	q := model.TransactionQuery{AccountID: id}
	var (
		from, to       *time.Time
		hostID         *int64
		txType, kind   *string
		limit, offset  *int
		includeDeleted *bool
	)
	for name, dest := range map[string]any{
		"from": &from, "to": &to, "host_id": &hostID, "type": &txType, "kind": &kind,
		"limit": &limit, "offset": &offset, "include_deleted": &includeDeleted,
	} {
		if err := queryParam(r, name, dest); err != nil {
			writeError(w, r, s.log, err)
			return
		}
	}
	q.From, q.To, q.HostID = from, to, hostID
	if txType != nil {
		q.Type = model.TransactionType(strings.ToUpper(*txType))
	}
	if kind != nil {
		q.Kind = model.TransactionKind(strings.ToUpper(*kind))
	}
	if limit != nil {
		q.Limit = min(*limit, maxListLimit)
	}
	if offset != nil {
		q.Offset = *offset
	}
	if includeDeleted != nil {
		q.IncludeDeleted = *includeDeleted
	}

	rows, err := s.ledger.ListByAccount(r.Context(), q)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toTransactions(rows)})
}

func (s *Server) listOrderTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	rows, err := s.ledger.ListByOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toTransactions(rows)})
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	t, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransaction(t))
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	g, err := pathGroup(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	rows, err := s.ledger.ListByGroup(r.Context(), g)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toTransactions(rows)})
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	g, err := pathGroup(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	n, err := s.ledger.SoftDeleteGroup(r.Context(), s.actor(r), g)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var asOf *time.Time
	if err := queryParam(r, "as_of", &asOf); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	b, err := s.balance.GetBalance(r.Context(), s.actor(r), id, asOf)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) getHostBalances(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var asOf *time.Time
	if err := queryParam(r, "as_of", &asOf); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	groups, err := s.balance.BalancesByHost(r.Context(), s.actor(r), id, asOf)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	items := make([]HostBalance, 0, len(groups))
	for _, g := range groups {
		items = append(items, HostBalance(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type carryforwardRequest struct {
	EndOfPeriod time.Time `json:"end_of_period"`
}

func (s *Server) createCarryforward(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var req carryforwardRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	cf, err := s.balance.CreateCarryforward(r.Context(), s.actor(r), id, req.EndOfPeriod)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if cf == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, Carryforward{
		Balance: cf.Balance,
		Warning: cf.Warning,
		Closing: toTransaction(cf.Closing),
		Opening: toTransaction(cf.Opening),
	})
}

type deactivateRequest struct {
	Reason string `json:"reason"`
	Status string `json:"status"` // CANCELLED (default) or PAUSED
}

func (s *Server) deactivateRecurring(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var req deactivateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	status := model.OrderStatusCancelled
	if req.Status != "" {
		status = model.OrderStatus(strings.ToUpper(req.Status))
	}
	n, err := s.orders.DeactivateForAccount(r.Context(), s.actor(r), id, req.Reason, status)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deactivated": n})
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var in usecase.OrderInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out, err := s.orders.CreateOrder(r.Context(), s.actor(r), in)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	charge := out.Charge
	if charge.Err != nil && charge.Error == "" {
		charge.Error = charge.Err.Error()
	}
	writeJSON(w, http.StatusCreated, CreateOrderResponse{Order: toOrder(out.Order), Charge: charge})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	o, err := s.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (s *Server) refund(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out, err := s.refunds.Refund(r.Context(), s.actor(r), id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRefund(out))
}
