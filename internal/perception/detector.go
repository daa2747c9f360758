// Package perception adapts an external detection service into observations.
// The service receives a screenshot and returns the UI elements it found;
// detection runs out of process, this package only speaks its HTTP protocol.
package perception

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
	"github.com/TomBraudo/windows-assistant/internal/config"
	"github.com/TomBraudo/windows-assistant/internal/screen"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPDetector calls an OmniParser-style detection endpoint. The wire format
// reports bounding boxes normalized to [0,1]; the detector converts them to
// display-relative physical pixels before anything downstream sees them.
type HTTPDetector struct {
	endpoint   string
	cfg        config.PerceptionConfig
	env        *screen.Environment
	httpClient *http.Client
	logger     *zap.Logger
}

type detectRequest struct {
	ImageBase64  string  `json:"image_base64"`
	BoxThreshold float64 `json:"box_threshold"`
	IoUThreshold float64 `json:"iou_threshold"`
}

type detectResponse struct {
	Elements []wireElement `json:"elements"`
}

type wireElement struct {
	Type       string     `json:"type"`
	BBox       [4]float64 `json:"bbox"`
	Content    string     `json:"content"`
	Confidence *float64   `json:"confidence"`
}

// NewHTTPDetector builds a detector against cfg.Endpoint.
func NewHTTPDetector(cfg config.PerceptionConfig, env *screen.Environment, logger *zap.Logger) (*HTTPDetector, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("perception endpoint is required")
	}
	return &HTTPDetector{
		endpoint: cfg.Endpoint,
		cfg:      cfg,
		env:      env,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.Named("perception"),
	}, nil
}

// Detect submits the screenshot at screenshotPath and returns the resulting
// observation. Transient failures are retried with exponential backoff up to
// the configured attempt count; exhaustion surfaces as a PERCEPTION_ERROR.
func (d *HTTPDetector) Detect(ctx context.Context, screenshotPath string, displayID int) (schemas.Observation, error) {
	display, err := d.env.Display(displayID)
	if err != nil {
		return schemas.Observation{}, err
	}

	raw, err := os.ReadFile(screenshotPath)
	if err != nil {
		return schemas.Observation{}, schemas.NewCoreError(schemas.ErrCodePerception, "read screenshot %s: %v", screenshotPath, err)
	}

	body, err := json.Marshal(detectRequest{
		ImageBase64:  base64.StdEncoding.EncodeToString(raw),
		BoxThreshold: d.cfg.BoxThreshold,
		IoUThreshold: d.cfg.IoUThreshold,
	})
	if err != nil {
		return schemas.Observation{}, fmt.Errorf("marshal detect request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 10 * time.Second
	retries := uint64(d.cfg.MaxRetries)

	var payload detectResponse
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create detect request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := d.httpClient.Do(httpReq)
		if err != nil {
			d.logger.Warn("Detection request failed, retrying...", zap.Error(err))
			return fmt.Errorf("execute detect request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read detect response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("detector returned status %d: %s", resp.StatusCode, string(respBody))
			switch resp.StatusCode {
			case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
				return err
			default:
				return backoff.Permanent(err)
			}
		}

		if err := json.Unmarshal(respBody, &payload); err != nil {
			return backoff.Permanent(fmt.Errorf("decode detect response: %w", err))
		}

		d.logger.Debug("Detection complete",
			zap.Duration("duration", time.Since(start)),
			zap.Int("elements", len(payload.Elements)))
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)); err != nil {
		if ctx.Err() != nil {
			return schemas.Observation{}, schemas.NewCoreError(schemas.ErrCodeTimeout, "detection: %v", err)
		}
		return schemas.Observation{}, schemas.NewCoreError(schemas.ErrCodePerception, "detection failed: %v", err)
	}

	return schemas.Observation{
		ID:             uuid.NewString(),
		ScreenshotPath: screenshotPath,
		DisplayID:      displayID,
		Elements:       d.convert(payload.Elements, display),
		Timestamp:      time.Now().UTC(),
	}, nil
}

// convert maps wire elements into display-relative physical pixels and
// assigns per-observation ids in wire order.
func (d *HTTPDetector) convert(wire []wireElement, display screen.Display) []schemas.Element {
	w := display.Bounds.Width()
	h := display.Bounds.Height()

	out := make([]schemas.Element, 0, len(wire))
	for i, we := range wire {
		confidence := 1.0
		if we.Confidence != nil {
			confidence = *we.Confidence
		}
		out = append(out, schemas.Element{
			ID:          i,
			Kind:        kindOf(we.Type),
			BBox:        schemas.BBox{X0: we.BBox[0] * w, Y0: we.BBox[1] * h, X1: we.BBox[2] * w, Y1: we.BBox[3] * h},
			Description: we.Content,
			Confidence:  confidence,
		})
	}
	return out
}

func kindOf(wireType string) schemas.ElementKind {
	switch wireType {
	case "text":
		return schemas.ElementText
	case "icon":
		return schemas.ElementIcon
	case "image":
		return schemas.ElementImage
	default:
		return schemas.ElementUnknown
	}
}
