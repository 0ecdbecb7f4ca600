// internal/blockchain/solbc/relay/rest.go
package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	bloxroutePath = "/api/v2/submit"
	flashbotsPath = "/v1/solana/submit-bundle"

	maxResponseBody = 1 << 20
)

// restRelay REST протоколы с путём и заголовком авторизации, специфичными для вендора
type restRelay struct {
	vendor    Vendor
	endpoint  string
	header    string
	apiKey    string
	buildBody func(encoded string) any
	client    *http.Client
	logger    *zap.Logger
}

func newBloxroute(url, apiKey string, client *http.Client, logger *zap.Logger) *restRelay {
	return &restRelay{
		vendor:   VendorBloxroute,
		endpoint: joinPath(url, bloxroutePath),
		header:   "Authorization",
		apiKey:   apiKey,
		buildBody: func(encoded string) any {
			return map[string]any{
				"transaction":            map[string]string{"content": encoded},
				"skipPreFlight":          true,
				"frontRunningProtection": false,
			}
		},
		client: client,
		logger: logger,
	}
}

func newFlashbots(url, apiKey string, client *http.Client, logger *zap.Logger) *restRelay {
	return &restRelay{
		vendor:   VendorFlashbots,
		endpoint: joinPath(url, flashbotsPath),
		header:   "X-Flashbots-Key",
		apiKey:   apiKey,
		buildBody: func(encoded string) any {
			return map[string]any{
				"transactions": []string{encoded},
				"encoding":     "base64",
			}
		},
		client: client,
		logger: logger,
	}
}

// joinPath добавляет путь вендора, если URL уже не заканчивается им
func joinPath(url, path string) string {
	base := strings.TrimRight(url, "/")
	if strings.HasSuffix(base, path) {
		return base
	}
	return base + path
}

func (r *restRelay) Vendor() Vendor { return r.vendor }

// restResponse покрывает варианты ответа: success:true либо status ok/success
type restResponse struct {
	Success   *bool  `json:"success"`
	Status    string `json:"status"`
	Signature string `json:"signature"`
	BundleID  string `json:"bundleId"`
	Result    *struct {
		Signature string `json:"signature"`
	} `json:"result"`
	Error string `json:"error"`
}

func (r *restRelay) Submit(ctx context.Context, req Request) (Result, error) {
	encoded := base64.StdEncoding.EncodeToString(req.Raw)
	body, err := json.Marshal(r.buildBody(encoded))
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode body: %v", ErrRelay, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRelay, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set(r.header, r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRelay, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read response: %v", ErrRelay, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("%w: http %d: %s", ErrRelay, resp.StatusCode, truncate(payload, 200))
	}

	var parsed restResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	res := Result{
		Vendor:    r.vendor,
		Success:   restSuccess(parsed),
		Signature: parsed.Signature,
		BundleID:  parsed.BundleID,
	}
	if res.Signature == "" && parsed.Result != nil {
		res.Signature = parsed.Result.Signature
	}

	r.logger.Debug("Relay response",
		zap.Bool("success", res.Success),
		zap.String("signature", res.Signature),
		zap.String("error", parsed.Error))
	return res, nil
}

func restSuccess(r restResponse) bool {
	if r.Success != nil {
		return *r.Success
	}
	switch strings.ToLower(r.Status) {
	case "ok", "success":
		return true
	}
	return false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
