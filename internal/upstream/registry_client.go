// Package upstream holds HTTP clients for the external collaborators: the
// contact registry, the transactional notifier, and the sealed will store.
// The core only ever sees their interfaces in internal/service.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"willvault/internal/domain"
	"willvault/internal/service"

	"github.com/google/uuid"
)

var _ service.ContactRegistry = (*RegistryClient)(nil)

type RegistryClient struct {
	baseURL string
	http    *http.Client
}

func NewRegistryClient(baseURL string) *RegistryClient {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "http://localhost:8087"
	}
	return &RegistryClient{
		baseURL: base,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type registryContact struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type registryResponse struct {
	Executors       []registryContact `json:"executors"`
	Beneficiaries   []registryContact `json:"beneficiaries"`
	TrustedContacts []registryContact `json:"trustedContacts"`
}

func (c *RegistryClient) ListParties(ctx context.Context, testatorID domain.TestatorID) (domain.PartySnapshot, error) {
	var body registryResponse
	path := fmt.Sprintf("/v1/registry/%s/parties", testatorID)
	if err := getJSON(ctx, c.http, c.baseURL+path, &body); err != nil {
		return domain.PartySnapshot{}, err
	}
	snap := domain.PartySnapshot{}
	var err error
	if snap.Executors, err = toContacts(body.Executors); err != nil {
		return domain.PartySnapshot{}, err
	}
	if snap.Beneficiaries, err = toContacts(body.Beneficiaries); err != nil {
		return domain.PartySnapshot{}, err
	}
	if snap.TrustedContacts, err = toContacts(body.TrustedContacts); err != nil {
		return domain.PartySnapshot{}, err
	}
	return snap, nil
}

func toContacts(in []registryContact) ([]domain.Contact, error) {
	out := make([]domain.Contact, 0, len(in))
	for _, rc := range in {
		id, err := uuid.Parse(rc.ID)
		if err != nil {
			return nil, fmt.Errorf("registry returned bad contact id %q: %w", rc.ID, err)
		}
		out = append(out, domain.Contact{ID: id, FullName: rc.FullName, Email: rc.Email})
	}
	return out, nil
}
