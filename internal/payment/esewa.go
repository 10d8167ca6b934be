// Package payment talks to the eSewa payment gateway and keeps a ledger of
// started and verified transactions.
package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shopassist/internal/domain"
)

var (
	// ErrNoRedirect means the gateway did not produce a redirect URL.
	ErrNoRedirect = errors.New("payment gateway returned no redirect url")
	// ErrVerificationFailed means the gateway answered but did not confirm the payment.
	ErrVerificationFailed = errors.New("payment verification failed")
)

// Config holds the merchant settings and gateway endpoints.
type Config struct {
	MerchantCode string
	PaymentURL   string
	VerifyURL    string
	SuccessURL   string
	FailureURL   string
	Timeout      time.Duration
}

// Esewa implements domain.PaymentGateway against the eSewa ePay v1 API.
type Esewa struct {
	cfg    Config
	client *http.Client
}

func NewEsewa(cfg Config) *Esewa {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Esewa{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// RedirectURL builds the hosted payment page URL for req.
func (e *Esewa) RedirectURL(_ context.Context, req domain.PaymentRequest) (string, error) {
	if e.cfg.PaymentURL == "" {
		return "", ErrNoRedirect
	}
	amt := FormatAmount(req.Amount)
	params := url.Values{
		"amt":   {amt},
		"pdc":   {"0"},
		"psc":   {"0"},
		"txAmt": {"0"},
		"tAmt":  {amt},
		"pid":   {req.ProductID},
		"scd":   {e.cfg.MerchantCode},
		"su":    {e.cfg.SuccessURL},
		"fu":    {e.cfg.FailureURL},
	}
	return e.cfg.PaymentURL + "?" + params.Encode(), nil
}

// Verify asks the gateway to confirm a completed transaction.
func (e *Esewa) Verify(ctx context.Context, amount float64, productID, refID string) error {
	form := url.Values{
		"amt": {FormatAmount(amount)},
		"rid": {refID},
		"pid": {productID},
		"scd": {e.cfg.MerchantCode},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("esewa verify: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read esewa verify response: %w", err)
	}
	if !strings.Contains(string(body), "Success") {
		return ErrVerificationFailed
	}
	return nil
}

// FormatAmount renders amount rounded to two decimals without trailing zeros.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(math.Round(amount*100)/100, 'f', -1, 64)
}
