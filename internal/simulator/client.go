package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/fleetgazer/internal/models"
)

// Client fleetgazer HTTP 客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fleet 获取服务端当前车队
func (c *Client) Fleet(ctx context.Context) ([]models.Vehicle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/vehicles", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list vehicles: status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []models.Vehicle `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Data, nil
}

// SendTelemetry 上报一条遥测数据
func (c *Client) SendTelemetry(ctx context.Context, t models.Telemetry) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/telemetry", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("send telemetry: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Run 每隔 interval 为每台设备上报一次，直到 ctx 结束
// 单次上报失败只记录日志；rounds 大于 0 时上报指定轮数后返回。
func Run(ctx context.Context, client *Client, trackers []*Tracker, interval time.Duration, rounds int, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for round := 1; ; round++ {
		for _, t := range trackers {
			if err := client.SendTelemetry(ctx, t.Read(time.Now())); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("Failed to transmit telemetry", zap.String("vehicle_id", t.VehicleID()), zap.Error(err))
				continue
			}
			logger.Debug("Telemetry transmitted", zap.String("vehicle_id", t.VehicleID()))
		}

		if rounds > 0 && round >= rounds {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
