// internal/blockchain/solbc/relay/generic.go
package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// genericRelay отправка через JSON-RPC sendTransaction на приватный узел
type genericRelay struct {
	url    string
	apiKey string
	client *http.Client
	logger *zap.Logger
}

func newGeneric(url, apiKey string, client *http.Client, logger *zap.Logger) *genericRelay {
	return &genericRelay{url: url, apiKey: apiKey, client: client, logger: logger}
}

func (g *genericRelay) Vendor() Vendor { return VendorGeneric }

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *genericRelay) Submit(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sendTransaction",
		Params: []any{
			base64.StdEncoding.EncodeToString(req.Raw),
			map[string]any{"encoding": "base64", "skipPreflight": true},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode body: %v", ErrRelay, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRelay, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
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

	var parsed jsonRPCResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if parsed.Error != nil {
		return Result{}, fmt.Errorf("%w: rpc error %d: %s", ErrRelay, parsed.Error.Code, parsed.Error.Message)
	}

	res := Result{Vendor: VendorGeneric}

	// результат либо строка с подписью, либо объект с флагом успеха
	var sig string
	if err := json.Unmarshal(parsed.Result, &sig); err == nil {
		res.Success = sig != ""
		res.Signature = sig
		return res, nil
	}

	var obj restResponse
	if err := json.Unmarshal(parsed.Result, &obj); err != nil {
		return Result{}, fmt.Errorf("%w: unexpected result %s", ErrInvalidResponse, truncate(parsed.Result, 200))
	}
	res.Success = restSuccess(obj)
	res.Signature = obj.Signature
	res.BundleID = obj.BundleID

	g.logger.Debug("Relay response",
		zap.Bool("success", res.Success),
		zap.String("signature", res.Signature))
	return res, nil
}
