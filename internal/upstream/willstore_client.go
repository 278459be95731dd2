package upstream

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"willvault/internal/domain"
	"willvault/internal/service"
)

var _ service.WillStore = (*WillStoreClient)(nil)

type WillStoreClient struct {
	baseURL string
	http    *http.Client
}

func NewWillStoreClient(baseURL string) *WillStoreClient {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "http://localhost:8089"
	}
	return &WillStoreClient{
		baseURL: base,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *WillStoreClient) GetSealedContent(ctx context.Context, testatorID domain.TestatorID) ([]byte, error) {
	var body struct {
		Sealed string `json:"sealed"` // base64
	}
	path := fmt.Sprintf("/v1/wills/%s/sealed", testatorID)
	if err := getJSON(ctx, c.http, c.baseURL+path, &body); err != nil {
		return nil, err
	}
	sealed, err := base64.StdEncoding.DecodeString(body.Sealed)
	if err != nil {
		return nil, fmt.Errorf("will store returned bad payload: %w", err)
	}
	return sealed, nil
}
