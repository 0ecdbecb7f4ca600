package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/rpc"
)

// ReasonManual помечает ротации, выполненные из интерфейса
const ReasonManual = "manual"

// Source поставляет снимки состояния движка
type Source interface {
	Fetch(ctx context.Context) (rpc.Status, error)
}

// Rotator умеет переключать активный узел; есть только у локального источника
type Rotator interface {
	Rotate(ctx context.Context) (string, error)
}

// EngineSource читает состояние движка в том же процессе
type EngineSource struct {
	Engine *rpc.Engine
}

func (s EngineSource) Fetch(context.Context) (rpc.Status, error) {
	return s.Engine.GetStatus(), nil
}

func (s EngineSource) Rotate(context.Context) (string, error) {
	return s.Engine.RotateActive(ReasonManual), nil
}

// RemoteSource опрашивает /rpc/status работающего процесса
type RemoteSource struct {
	BaseURL string
	Client  *http.Client
}

// NewRemoteSource создает источник для адреса дашборда
func NewRemoteSource(baseURL string) *RemoteSource {
	return &RemoteSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 2 * time.Second},
	}
}

func (s *RemoteSource) Fetch(ctx context.Context) (rpc.Status, error) {
	var status rpc.Status

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/rpc/status", nil)
	if err != nil {
		return status, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return status, fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return status, fmt.Errorf("fetch status: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}
