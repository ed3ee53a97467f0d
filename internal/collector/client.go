package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// proxyWorker matches one entry in the mining proxy's /1/workers response.
// Hashrate entries are null until the proxy has enough samples.
type proxyWorker struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Hashrate struct {
		Total []*float64 `json:"total"`
	} `json:"hashrate"`
}

type workersResponse struct {
	Workers map[string]proxyWorker `json:"workers"`
}

// ProxyClient talks to the mining proxy's HTTP API.
type ProxyClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewProxyClient creates a ProxyClient with a bounded request timeout.
func NewProxyClient(baseURL, token string) *ProxyClient {
	return &ProxyClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchWorkers returns the proxy's current per-worker counters keyed by
// worker ID.
func (c *ProxyClient) FetchWorkers(ctx context.Context) (map[string]proxyWorker, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/1/workers", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch proxy workers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy server returned %d", resp.StatusCode)
	}

	var data workersResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode proxy response: %w", err)
	}

	return data.Workers, nil
}

func hashrateAt(total []*float64, i int) float64 {
	if i >= len(total) || total[i] == nil {
		return 0
	}
	return *total[i]
}
