package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"parsshop-be/internal/coupon"
	"parsshop-be/internal/order"
	"parsshop-be/internal/product"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderHandler struct {
	Orders order.Service
}

func (h *OrderHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/refund", h.refundOrder)
}

type orderItemReq struct {
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity"`
}

type placeOrderReq struct {
	Items         []orderItemReq `json:"items"`
	AddressID     *uuid.UUID     `json:"address_id"`
	PaymentMethod string         `json:"payment_method,omitempty"`
	CouponCode    *string        `json:"coupon_code,omitempty"`
}

type orderItemResp struct {
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Name      string     `json:"name"`
	Quantity  int        `json:"quantity"`
	UnitPrice int64      `json:"unit_price"`
	Subtotal  int64      `json:"subtotal"`
}

type orderResp struct {
	ID            uuid.UUID       `json:"id"`
	OrderNumber   string          `json:"order_number"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Subtotal      int64           `json:"subtotal"`
	Tax           int64           `json:"tax"`
	ShippingFee   int64           `json:"shipping_fee"`
	Discount      int64           `json:"discount"`
	Total         int64           `json:"total"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []orderItemResp `json:"items,omitempty"`
}

func toOrderResp(o *order.Order) orderResp {
	resp := orderResp{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Subtotal:      o.Subtotal,
		Tax:           o.Tax,
		ShippingFee:   o.ShippingFee,
		Discount:      o.Discount,
		Total:         o.Total,
		CreatedAt:     o.CreatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResp{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
		})
	}
	return resp
}

func (h *OrderHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	input := order.PlaceOrderInput{
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.CouponCode,
	}
	for _, it := range req.Items {
		input.Items = append(input.Items, order.PlaceOrderItemInput{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
		})
	}

	o, err := h.Orders.PlaceOrder(r.Context(), input)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResp(o))
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.Orders.GetOrderDetail(r.Context(), orderID)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.Orders.CancelOrder(r.Context(), orderID)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrderHandler) refundOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.Orders.RefundOrder(r.Context(), orderID)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResp(o))
}

// writeOrderError maps domain errors onto HTTP status codes. Unknown
// errors stay opaque.
func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, product.ErrProductNotFound),
		errors.Is(err, coupon.ErrCouponNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, order.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, order.ErrInvalidItems),
		errors.Is(err, order.ErrAddressRequired),
		errors.Is(err, coupon.ErrCouponNotYetValid),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrCouponMinAmount),
		errors.Is(err, coupon.ErrCouponExhausted),
		errors.Is(err, coupon.ErrCouponLimitExceeded):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, order.ErrNotRefundable),
		errors.Is(err, order.ErrAlreadyPaid),
		errors.Is(err, order.ErrPaymentNotRetryable),
		errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
