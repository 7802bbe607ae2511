package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"parsshop-be/internal/order"
	"parsshop-be/internal/payment"
	"parsshop-be/internal/reconcile"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type PaymentHandler struct {
	Orders    order.Service
	Reconcile reconcile.Service
}

func (h *PaymentHandler) Register(r *chi.Mux) {
	r.Post("/orders/{id}/payment", h.beginPayment)
	r.Get("/payment/callback", h.paymentCallback)
	r.Post("/webhook/payment", h.paymentWebhook)
}

type beginPaymentResp struct {
	Authority   string `json:"authority"`
	RedirectURL string `json:"redirect_url"`
	Fee         int64  `json:"fee,omitempty"`
}

type reconcileResp struct {
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

func toReconcileResp(res *reconcile.Result) reconcileResp {
	return reconcileResp{
		OrderNumber:   res.OrderNumber,
		Status:        string(res.Status),
		PaymentStatus: string(res.PaymentStatus),
	}
}

func (h *PaymentHandler) beginPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	session, err := h.Orders.BeginPayment(r.Context(), orderID)
	if err != nil {
		writePaymentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, beginPaymentResp{
		Authority:   session.Authority,
		RedirectURL: session.RedirectURL,
		Fee:         session.Fee,
	})
}

// paymentCallback is the customer redirect channel. The gateway appends
// Authority and Status=OK|NOK to the configured callback URL.
func (h *PaymentHandler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	authority := r.URL.Query().Get("Authority")
	status := r.URL.Query().Get("Status")
	if authority == "" || status == "" {
		writeError(w, http.StatusBadRequest, "missing Authority or Status")
		return
	}

	outcome := reconcile.OutcomeDeclined
	if status == "OK" {
		outcome = reconcile.OutcomeSuccess
	}

	h.reconcile(w, r, authority, outcome)
}

type webhookReq struct {
	Authority string `json:"authority"`
	Status    string `json:"status"`
}

// paymentWebhook is the server-to-server channel. Same reconciliation as
// the callback, both deliveries of one payment converge on one committed
// state.
func (h *PaymentHandler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Authority == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "missing authority or status")
		return
	}

	outcome := reconcile.OutcomeDeclined
	if strings.EqualFold(req.Status, "OK") || strings.EqualFold(req.Status, "SUCCESS") {
		outcome = reconcile.OutcomeSuccess
	}

	h.reconcile(w, r, req.Authority, outcome)
}

func (h *PaymentHandler) reconcile(w http.ResponseWriter, r *http.Request, authority string, outcome reconcile.Outcome) {
	res, err := h.Reconcile.Reconcile(r.Context(), authority, outcome)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "unknown authority")
		case errors.Is(err, reconcile.ErrVerificationFailed):
			writeError(w, http.StatusUnprocessableEntity, "payment verification failed")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, toReconcileResp(res))
}

func writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrAlreadyPaid),
		errors.Is(err, order.ErrPaymentNotRetryable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrAmountBelowMinimum):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		var gwErr *payment.GatewayError
		if errors.As(err, &gwErr) {
			writeError(w, http.StatusBadGateway, gwErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
