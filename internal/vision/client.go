package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"notaflow/internal/config"
)

const extractionPrompt = `Extract all information from this delivery invoice.
Return JSON with these fields:
- supplier_name (string): the supplier's name
- buyer_name (string): the buyer's name if printed
- date (string): invoice date as YYYY-MM-DD
- items (array): one entry per line with fields:
  - name (string): item name
  - quantity (number)
  - unit (string): unit of measure, standard abbreviations only (kg, g, l, ml, pcs)
  - price (number): price per unit
- total_amount (number): invoice total
If a value is unreadable, omit the field. Return ONLY JSON.`

// Client calls an OpenAI-compatible vision endpoint and turns the reply
// into a Document. This is the pipeline's single long-latency suspension
// point; it is awaited once per invoice.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	log        logrus.FieldLogger
}

func NewClient(cfg config.Config, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.VisionTimeoutMs) * time.Millisecond},
		log:        log,
	}
}

// ExtractInvoice sends the photographed invoice to the model. A network
// or API failure is an error; unusable-but-delivered output is not, it
// degrades to an empty skeleton with parsed=false.
func (c *Client) ExtractInvoice(ctx context.Context, image []byte) (*Document, bool, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	content := []map[string]any{
		{"type": "text", "text": extractionPrompt},
		{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
	}
	return c.extract(ctx, content)
}

// ExtractInvoiceText handles uploads that already carry embedded text,
// e.g. PDF invoices; the model sees the text, not pixels.
func (c *Client) ExtractInvoiceText(ctx context.Context, text string) (*Document, bool, error) {
	content := []map[string]any{
		{"type": "text", "text": extractionPrompt + "\n\nInvoice text:\n" + text},
	}
	return c.extract(ctx, content)
}

func (c *Client) extract(ctx context.Context, content []map[string]any) (*Document, bool, error) {
	if strings.TrimSpace(c.cfg.VisionAPIKey) == "" {
		return nil, false, errors.New("missing VISION_API_KEY")
	}

	reqID := uuid.New().String()
	start := time.Now()
	body := map[string]any{
		"model":           c.cfg.VisionModel,
		"max_tokens":      4000,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}

	raw, err := c.post(ctx, body, reqID)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"req_id": reqID, "elapsed_ms": time.Since(start).Milliseconds(),
		}).Error("vision extraction failed")
		return nil, false, err
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, false, fmt.Errorf("decode vision response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, false, errors.New("vision response has no choices")
	}

	doc, parsed := ParseDocument(completion.Choices[0].Message.Content, c.log)
	c.log.WithFields(logrus.Fields{
		"req_id":     reqID,
		"items":      len(doc.Items),
		"parsed":     parsed,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("vision extraction done")
	return doc, parsed, nil
}

func (c *Client) post(ctx context.Context, body map[string]any, reqID string) ([]byte, error) {
	blob, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(c.cfg.VisionBaseURL, "/") + "/chat/completions"

	retries := c.cfg.VisionRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(blob))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.VisionAPIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Request-Id", reqID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < retries {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				lastErr = fmt.Errorf("vision api status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("vision api error: status=%d body=%s", resp.StatusCode, truncate(string(raw), 400))
		}
		return raw, nil
	}

	if lastErr == nil {
		lastErr = errors.New("vision request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
