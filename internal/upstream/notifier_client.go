package upstream

import (
	"context"
	"net/http"
	"strings"
	"time"

	"willvault/internal/service"
)

var _ service.Notifier = (*NotifierClient)(nil)

type NotifierClient struct {
	baseURL string
	http    *http.Client
}

func NewNotifierClient(baseURL string) *NotifierClient {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "http://localhost:8088"
	}
	return &NotifierClient{
		baseURL: base,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *NotifierClient) Send(ctx context.Context, recipient string, kind service.TemplateKind, payload map[string]string) (string, error) {
	req := struct {
		Recipient string            `json:"recipient"`
		Template  string            `json:"template"`
		Payload   map[string]string `json:"payload"`
	}{Recipient: recipient, Template: string(kind), Payload: payload}

	var body struct {
		DeliveryID string `json:"deliveryId"`
	}
	if err := postJSON(ctx, c.http, c.baseURL+"/v1/notifications", req, &body); err != nil {
		return "", err
	}
	return body.DeliveryID, nil
}
