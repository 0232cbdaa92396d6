package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "pixtral-large-latest"
)

// MistralVision recognizes text through the Mistral OCR API. Calls are
// rate-limited so parallel passes do not trip the provider's quota, and
// transient failures (429, 5xx, network resets) are retried with backoff.
type MistralVision struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
}

// NewMistralVision creates a MistralVision engine. Empty model uses the
// default; ratePerSec <= 0 disables throttling.
func NewMistralVision(apiKey, model string, ratePerSec float64) *MistralVision {
	if model == "" {
		model = defaultMistralModel
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("mistral", "ocr")
	return &MistralVision{
		apiKey:   apiKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
		limiter:  limiter,
		retry:    retry,
	}
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// Recognize sends the image and returns the concatenated page markdown. The
// API reports no per-word confidence, so a fixed prior is used; calibration
// corrects it against observed accuracy downstream.
func (m *MistralVision) Recognize(ctx context.Context, imagePath string, pass model.OCRPassConfig) (*model.OCRResult, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "ocr: mistral rate wait")
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: read image %s", imagePath)
	}

	start := time.Now()
	encoded := base64.StdEncoding.EncodeToString(data)
	dataURL := "data:image/png;base64," + encoded

	reqBody := mistralOCRRequest{
		Model: m.model,
		Document: mistralOCRDocument{
			Type:     "image_url",
			ImageURL: dataURL,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: marshal mistral request")
	}

	respBody, err := resilience.Do(ctx, m.retry, func(ctx context.Context) ([]byte, error) {
		return m.roundTrip(ctx, bodyBytes)
	})
	if err != nil {
		return nil, err
	}

	var ocrResp mistralOCRResponse
	if err := json.Unmarshal(respBody, &ocrResp); err != nil {
		return nil, eris.Wrap(err, "ocr: unmarshal mistral response")
	}

	var sb strings.Builder
	for i, page := range ocrResp.Pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(page.Markdown)
	}

	return &model.OCRResult{
		Text:             sb.String(),
		Confidence:       0.85,
		Engine:           "mistral",
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// roundTrip performs one request against the OCR endpoint. Rate-limit and
// server-side failures come back as transient errors so the retry layer can
// back off and try again.
func (m *MistralVision) roundTrip(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read mistral response")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := eris.Errorf("ocr: mistral API returned %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	return respBody, nil
}
