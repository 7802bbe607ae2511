package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"parsshop-be/internal/logger"

	"go.uber.org/zap"
)

const (
	zarinpalBaseURL  = "https://payment.zarinpal.com/pg/v4/payment"
	zarinpalStartPay = "https://payment.zarinpal.com/pg/StartPay/"

	// codeSuccess is the only success signal, every other code is a decline.
	codeSuccess = 100

	// minAmount is the gateway-defined floor in minor units.
	minAmount = 1_000
)

type zarinpalGateway struct {
	merchantID  string
	callbackURL string
	httpClient  *http.Client
}

// ----------------- Constructor -----------------

func NewZarinpalGateway(merchantID, callbackURL string) Gateway {
	if merchantID == "" {
		logger.L().Warn("ZarinPal merchant id is empty")
	}

	return &zarinpalGateway{
		merchantID:  merchantID,
		callbackURL: callbackURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// zarinpalEnvelope matches the provider's response shape: "data" carries the
// payload on success, "errors" a code+message object on rejection. Both come
// back as raw JSON because their shape flips between object and empty array.
type zarinpalEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type zarinpalErrorBody struct {
	Code        int             `json:"code"`
	Message     string          `json:"message"`
	Validations json.RawMessage `json:"validations"`
}

// ----------------- RequestPayment -----------------

func (z *zarinpalGateway) RequestPayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error) {
	log := logger.FromCtx(ctx).With(
		zap.Int64("amount", req.Amount),
		zap.String("description", req.Description),
	)

	if req.Amount < minAmount {
		log.Warn("payment amount below gateway minimum")
		return nil, ErrAmountBelowMinimum
	}

	body := map[string]interface{}{
		"merchant_id":  z.merchantID,
		"amount":       req.Amount,
		"currency":     "IRR",
		"description":  req.Description,
		"callback_url": z.callbackURL,
		"metadata": map[string]interface{}{
			"mobile": req.Mobile,
			"email":  req.Email,
		},
	}

	env, err := z.post(ctx, zarinpalBaseURL+"/request.json", body)
	if err != nil {
		return nil, err
	}

	var data struct {
		Code      int    `json:"code"`
		Message   string `json:"message"`
		Authority string `json:"authority"`
		Fee       int64  `json:"fee"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		log.Error("failed decoding gateway request response", zap.Error(err))
		return nil, &GatewayError{Message: "unrecognized response shape"}
	}

	if data.Code != codeSuccess || data.Authority == "" {
		log.Warn("gateway rejected payment request",
			zap.Int("code", data.Code),
			zap.String("message", data.Message),
		)
		return nil, &GatewayError{Code: data.Code, Message: data.Message}
	}

	log.Info("payment session created",
		zap.String("authority", data.Authority),
	)

	return &PaymentSession{
		Authority:   data.Authority,
		RedirectURL: zarinpalStartPay + data.Authority,
		Fee:         data.Fee,
	}, nil
}

// ----------------- VerifyPayment -----------------

// VerifyPayment confirms the outcome for an authority. A non-100 code is a
// declined verification, not an error: the caller drives the restore path
// off Verified=false.
func (z *zarinpalGateway) VerifyPayment(ctx context.Context, authority string, amount int64) (*VerifyResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("authority", authority),
		zap.Int64("amount", amount),
	)

	body := map[string]interface{}{
		"merchant_id": z.merchantID,
		"amount":      amount,
		"authority":   authority,
	}

	env, err := z.post(ctx, zarinpalBaseURL+"/verify.json", body)
	if err != nil {
		return nil, err
	}

	var data struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		RefID   json.RawMessage `json:"ref_id"`
		CardPan string          `json:"card_pan"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		log.Error("failed decoding gateway verify response", zap.Error(err))
		return nil, &GatewayError{Message: "unrecognized response shape"}
	}

	if data.Code != codeSuccess {
		log.Warn("payment verification declined",
			zap.Int("code", data.Code),
			zap.String("message", data.Message),
		)
		return &VerifyResult{
			Verified: false,
			Code:     data.Code,
			Message:  data.Message,
		}, nil
	}

	refID := decodeRefID(data.RefID)
	log.Info("payment verified",
		zap.String("ref_id", refID),
	)

	return &VerifyResult{
		Verified: true,
		RefID:    refID,
		CardPan:  data.CardPan,
		Code:     data.Code,
		Message:  data.Message,
	}, nil
}

// ----------------- Refund -----------------

func (z *zarinpalGateway) Refund(ctx context.Context, authority string) (*RefundResult, error) {
	log := logger.FromCtx(ctx).With(zap.String("authority", authority))

	body := map[string]interface{}{
		"merchant_id": z.merchantID,
		"authority":   authority,
	}

	env, err := z.post(ctx, zarinpalBaseURL+"/refund.json", body)
	if err != nil {
		return nil, err
	}

	var data struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		RefID   json.RawMessage `json:"ref_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		log.Error("failed decoding gateway refund response", zap.Error(err))
		return nil, &GatewayError{Message: "unrecognized response shape"}
	}

	if data.Code != codeSuccess {
		log.Warn("gateway rejected refund",
			zap.Int("code", data.Code),
			zap.String("message", data.Message),
		)
		return nil, &GatewayError{Code: data.Code, Message: data.Message}
	}

	log.Info("refund accepted by gateway")

	return &RefundResult{
		RefID: decodeRefID(data.RefID),
		Code:  data.Code,
	}, nil
}

// ----------------- helpers -----------------

func (z *zarinpalGateway) post(ctx context.Context, url string, body map[string]interface{}) (*zarinpalEnvelope, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")

	resp, err := z.httpClient.Do(req)
	if err != nil {
		logger.FromCtx(ctx).Error("gateway request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrGatewayUnavailable, err)
	}

	var env zarinpalEnvelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		logger.FromCtx(ctx).Error("malformed gateway response",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("%w: malformed response", ErrGatewayUnavailable)
	}

	if gwErr := decodeGatewayError(env.Errors); gwErr != nil {
		logger.FromCtx(ctx).Warn("gateway returned error body",
			zap.Int("code", gwErr.Code),
			zap.String("message", gwErr.Message),
		)
		return nil, gwErr
	}

	return &env, nil
}

// decodeGatewayError returns a *GatewayError when "errors" carries an error
// object. The field is an empty array on success.
func decodeGatewayError(raw json.RawMessage) *GatewayError {
	if len(raw) == 0 {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var body zarinpalErrorBody
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return &GatewayError{Message: "unrecognized error shape"}
	}
	return &GatewayError{Code: body.Code, Message: body.Message}
}

// decodeRefID tolerates the gateway sending ref_id as number or string.
func decodeRefID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return strconv.FormatInt(asNumber, 10)
	}

	return string(raw)
}
