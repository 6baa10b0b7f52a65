package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultMemoryTimeout = 3 * time.Second

// MemoryServiceConfig holds connection settings for the memory REST service
type MemoryServiceConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// MemoryService records audit entries against the memory service HTTP API.
// When the service is unreachable it degrades gracefully: records are
// dropped with a warning and the caller continues.
type MemoryService struct {
	logger *zap.Logger
	config MemoryServiceConfig
	client *http.Client
}

// NewMemoryService creates a recorder for the memory service at
// config.BaseURL.
func NewMemoryService(config MemoryServiceConfig, logger *zap.Logger) *MemoryService {
	if config.Timeout <= 0 {
		config.Timeout = defaultMemoryTimeout
	}
	return &MemoryService{
		logger: logger.Named("audit"),
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Health reports whether the memory service is reachable
func (m *MemoryService) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.config.BaseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Record implements Recorder. The server id is folded into the tag set as
// "server:<id>" and mirrored in the metadata object.
func (m *MemoryService) Record(ctx context.Context, content, serverID string, tags []string) bool {
	payload := map[string]interface{}{
		"content":   content,
		"timestamp": time.Now().Unix(),
	}
	if serverID != "" {
		tags = append(append([]string{}, tags...), fmt.Sprintf("server:%s", serverID))
		payload["metadata"] = map[string]interface{}{"server_id": serverID}
	}
	if len(tags) > 0 {
		payload["tags"] = tags
	}

	body, err := json.Marshal(payload)
	if err != nil {
		m.logger.Warn("Failed to marshal audit record", zap.Error(err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.BaseURL+"/memory", bytes.NewReader(body))
	if err != nil {
		m.logger.Warn("Failed to build audit request", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if m.config.APIKey != "" {
		req.Header.Set("x-api-key", m.config.APIKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("Audit store failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.logger.Warn("Audit store rejected record", zap.Int("status", resp.StatusCode))
		return false
	}
	return true
}
