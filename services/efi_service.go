package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yeremiapane/pix-checkout/models"
	"github.com/yeremiapane/pix-checkout/store"
	"github.com/yeremiapane/pix-checkout/utils"
)

// ErrUpstream marks any failure talking to the EFI API.
var ErrUpstream = errors.New("efi: upstream request failed")

// UpstreamError carries the HTTP detail of a failed EFI call. It unwraps to
// ErrUpstream so callers can match without caring about the detail.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("efi: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("efi: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// Retryable reports whether the failure is transient (network error or 5xx)
// as opposed to a terminal rejection (4xx / validation).
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// EfiChargeStatusRemoved is the status PATCHed upstream when the receiver
// cancels a charge.
const EfiChargeStatusRemoved = "REMOVIDA_PELO_USUARIO_RECEBEDOR"

// ChargeLocation is the result of registering a charge: the provider-confirmed
// txid plus the location handle used to materialize the payment code.
type ChargeLocation struct {
	TxID       string
	LocationID int64
}

// ChargeDetail is the provider's view of a charge, from the detail lookup.
type ChargeDetail struct {
	TxID   string
	Status models.ChargeStatus
	Amount string
}

// PixGateway is the provider contract the coordinator depends on. EfiService
// is the production implementation.
type PixGateway interface {
	CreateImmediateCharge(ctx context.Context, txid string, expirationSecs int, amount, payerKey string) (*ChargeLocation, error)
	GenerateQRCode(ctx context.Context, locationID int64) (string, error)
	DetailCharge(ctx context.Context, txid string) (*ChargeDetail, error)
	UpdateCharge(ctx context.Context, txid, status string) error
	RegisterWebhook(ctx context.Context, payerKey, url string) error
}

// EfiConfig holds EFI API credentials and connection settings.
type EfiConfig struct {
	ClientID        string
	ClientSecret    string
	Sandbox         bool
	CertificatePath string
	Timeout         time.Duration
}

// EfiService talks to the EFI PIX API. Authentication is OAuth client
// credentials; production additionally requires the account's mTLS client
// certificate (a PEM bundle holding cert and key).
type EfiService struct {
	config     *EfiConfig
	httpClient *http.Client
	baseURL    string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewEfiService builds the EFI client. The certificate, when configured, is
// loaded eagerly so a bad path fails at startup rather than on the first
// charge.
func NewEfiService(config *EfiConfig) (*EfiService, error) {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.CertificatePath != "" {
		cert, err := tls.LoadX509KeyPair(config.CertificatePath, config.CertificatePath)
		if err != nil {
			return nil, fmt.Errorf("efi: loading certificate %s: %w", config.CertificatePath, err)
		}
		transport.TLSClientConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}

	baseURL := "https://pix.api.efipay.com.br"
	if config.Sandbox {
		baseURL = "https://pix-h.api.efipay.com.br"
	}

	return &EfiService{
		config: config,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL: baseURL,
	}, nil
}

// ValidateConfig validates the EFI configuration.
func (s *EfiService) ValidateConfig() error {
	if s.config.ClientID == "" {
		return fmt.Errorf("EFI_CLIENT_ID is not set")
	}
	if s.config.ClientSecret == "" {
		return fmt.Errorf("EFI_CLIENT_SECRET is not set")
	}
	if !s.config.Sandbox && s.config.CertificatePath == "" {
		return fmt.Errorf("EFI_CERTIFICATE_PATH is required outside the sandbox")
	}
	return nil
}

func (s *EfiService) CreateImmediateCharge(ctx context.Context, txid string, expirationSecs int, amount, payerKey string) (*ChargeLocation, error) {
	body := map[string]interface{}{
		"calendario": map[string]interface{}{
			"expiracao": expirationSecs,
		},
		"valor": map[string]interface{}{
			"original": amount,
		},
		"chave":              payerKey,
		"solicitacaoPagador": "Pagamento via PIX",
	}

	var resp struct {
		TxID string `json:"txid"`
		Loc  struct {
			ID int64 `json:"id"`
		} `json:"loc"`
	}
	if err := s.doRequest(ctx, "create charge", http.MethodPut, "/v2/cob/"+txid, body, &resp); err != nil {
		return nil, err
	}
	if resp.TxID == "" || resp.Loc.ID == 0 {
		return nil, &UpstreamError{Op: "create charge", Err: errors.New("response missing txid or loc.id")}
	}
	return &ChargeLocation{TxID: resp.TxID, LocationID: resp.Loc.ID}, nil
}

func (s *EfiService) GenerateQRCode(ctx context.Context, locationID int64) (string, error) {
	var resp struct {
		QRCode string `json:"qrcode"`
	}
	path := fmt.Sprintf("/v2/loc/%d/qrcode", locationID)
	if err := s.doRequest(ctx, "generate qrcode", http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	if resp.QRCode == "" {
		return "", &UpstreamError{Op: "generate qrcode", Err: errors.New("response missing qrcode")}
	}
	return resp.QRCode, nil
}

func (s *EfiService) DetailCharge(ctx context.Context, txid string) (*ChargeDetail, error) {
	var resp struct {
		TxID   string `json:"txid"`
		Status string `json:"status"`
		Valor  struct {
			Original string `json:"original"`
		} `json:"valor"`
	}
	if err := s.doRequest(ctx, "detail charge", http.MethodGet, "/v2/cob/"+txid, nil, &resp); err != nil {
		return nil, err
	}
	return &ChargeDetail{
		TxID:   resp.TxID,
		Status: mapEfiStatus(resp.Status),
		Amount: resp.Valor.Original,
	}, nil
}

func (s *EfiService) UpdateCharge(ctx context.Context, txid, status string) error {
	body := map[string]interface{}{
		"status": status,
	}
	return s.doRequest(ctx, "update charge", http.MethodPatch, "/v2/cob/"+txid, body, nil)
}

func (s *EfiService) RegisterWebhook(ctx context.Context, payerKey, url string) error {
	body := map[string]interface{}{
		"webhookUrl": url,
	}
	return s.doRequest(ctx, "register webhook", http.MethodPut, "/v2/webhook/"+payerKey, body, nil)
}

// mapEfiStatus maps the provider's charge status to the internal one. An
// absent status is deliberately treated as ACTIVE, matching the provider's
// default for open charges.
func mapEfiStatus(status string) models.ChargeStatus {
	switch {
	case status == "CONCLUIDA":
		return models.ChargeStatusPaid
	case strings.HasPrefix(status, "REMOVIDA"):
		return models.ChargeStatusCancelled
	default:
		return models.ChargeStatusActive
	}
}

func (s *EfiService) getToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	payload := []byte(`{"grant_type":"client_credentials"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/oauth/token", bytes.NewBuffer(payload))
	if err != nil {
		return "", &UpstreamError{Op: "oauth token", Err: err}
	}
	auth := base64.StdEncoding.EncodeToString([]byte(s.config.ClientID + ":" + s.config.ClientSecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Op: "oauth token", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UpstreamError{Op: "oauth token", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{Op: "oauth token", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", &UpstreamError{Op: "oauth token", Err: err}
	}
	if tokenResp.AccessToken == "" {
		return "", &UpstreamError{Op: "oauth token", Err: errors.New("response missing access_token")}
	}

	s.token = tokenResp.AccessToken
	// Renew a minute early so in-flight requests never carry a stale token.
	s.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - time.Minute)
	return s.token, nil
}

func (s *EfiService) doRequest(ctx context.Context, op, method, path string, payload, out interface{}) error {
	token, err := s.getToken(ctx)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &UpstreamError{Op: op, Err: err}
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}

	utils.InfoLogger.Printf("EFI %s: %s %s -> %d", op, method, path, resp.StatusCode)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("efi: %s: %w", op, store.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &UpstreamError{Op: op, Err: fmt.Errorf("unmarshaling response: %w", err)}
		}
	}
	return nil
}
