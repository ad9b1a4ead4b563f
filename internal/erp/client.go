package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"notaflow/internal"
	"notaflow/internal/config"
)

// Submitter is what the workflow needs from the ERP side. The concrete
// client is swapped for a fake in tests.
type Submitter interface {
	SubmitInvoice(ctx context.Context, inv *internal.Invoice) (string, error)
}

// Client submits confirmed invoices to the ERP's incoming-documents
// endpoint. Authentication is a login call exchanged for a bearer token
// cached until shortly before expiry.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	log        logrus.FieldLogger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg config.Config, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.ERPTimeoutMs) * time.Millisecond},
		log:        log,
	}
}

type documentItem struct {
	ProductID string  `json:"productId"`
	Amount    float64 `json:"amount"`
	Unit      string  `json:"unit"`
	Price     float64 `json:"price"`
	Sum       float64 `json:"sum"`
}

type incomingDocument struct {
	DateIncoming   string         `json:"dateIncoming"`
	SupplierID     string         `json:"supplierId"`
	DefaultStoreID string         `json:"defaultStoreId"`
	Comment        string         `json:"comment,omitempty"`
	Items          []documentItem `json:"items"`
}

// SubmitInvoice returns the created document id. Any failure leaves the
// invoice untouched in the caller's session so a retry does not require
// re-uploading the photo.
func (c *Client) SubmitInvoice(ctx context.Context, inv *internal.Invoice) (string, error) {
	if inv == nil {
		return "", errors.New("nil invoice")
	}
	if inv.UnmatchedCount > 0 {
		return "", fmt.Errorf("invoice has %d unresolved lines", inv.UnmatchedCount)
	}
	if err := c.authenticate(ctx); err != nil {
		return "", err
	}

	payload := incomingDocument{
		DateIncoming:   inv.Date,
		SupplierID:     inv.SupplierID,
		DefaultStoreID: c.cfg.ERPStoreID,
		Comment:        "supplier: " + inv.SupplierName,
		Items:          make([]documentItem, 0, len(inv.Lines)),
	}
	for _, line := range inv.Lines {
		payload.Items = append(payload.Items, documentItem{
			ProductID: line.ProductID,
			Amount:    line.Quantity,
			Unit:      line.Unit,
			Price:     line.Price,
			Sum:       line.Amount(),
		})
	}

	reqID := uuid.New().String()
	start := time.Now()
	raw, status, err := c.postJSON(ctx, "/documents/incoming", payload, true)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{"req_id": reqID, "status": status}).Error("invoice submission failed")
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode submission response: %w", err)
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", errors.New("erp accepted the request but returned no document id")
	}

	c.log.WithFields(logrus.Fields{
		"req_id":      reqID,
		"document_id": resp.ID,
		"lines":       len(inv.Lines),
		"elapsed_ms":  time.Since(start).Milliseconds(),
	}).Info("invoice submitted")
	return resp.ID, nil
}

func (c *Client) authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}
	if err := c.cfg.Require("ERP_API_BASE_URL", c.cfg.ERPBaseURL); err != nil {
		return err
	}

	body := map[string]string{"login": c.cfg.ERPLogin, "password": c.cfg.ERPPassword}
	raw, status, err := c.postJSON(ctx, "/auth/login", body, false)
	if err != nil {
		return fmt.Errorf("erp authentication failed (status %d): %w", status, err)
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	if resp.Token == "" {
		return errors.New("erp auth returned no token")
	}

	c.token = resp.Token
	c.tokenExpiry = time.Now().Add(23 * time.Hour)
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, withAuth bool) ([]byte, int, error) {
	blob, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}

	url := strings.TrimRight(c.cfg.ERPBaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(blob))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if withAuth {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, resp.StatusCode, fmt.Errorf("erp status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}
	return raw, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
