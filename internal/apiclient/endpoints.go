package apiclient

import (
	"context"
	"fmt"
	"net/http"
)

// GetAccount fetches GET /account/{id}.
func (c *Client) GetAccount(ctx context.Context, id string) (*Account, error) {
	var out Account
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/public/v1/account/%s", id), nil, &out, authAccount); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccountSummary fetches GET /account/{id}/summary.
func (c *Client) GetAccountSummary(ctx context.Context, id string) (*AccountStateSummary, error) {
	var out AccountStateSummary
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/public/v1/account/%s/summary", id), nil, &out, authAccount); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDevices fetches GET /account/{id}/devices.
func (c *Client) ListDevices(ctx context.Context, id string) ([]Device, error) {
	var out []Device
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/public/v1/account/%s/devices", id), nil, &out, authAccount); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterDevice performs POST /account/{id}/devices.
func (c *Client) RegisterDevice(ctx context.Context, id string, req RegisterDeviceRequest) (*Device, error) {
	var out Device
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/public/v1/account/%s/devices", id), req, &out, authAccount); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListActiveDevices fetches GET /account/{id}/devices/active.
func (c *Client) ListActiveDevices(ctx context.Context, id string) ([]Device, error) {
	var out []Device
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/public/v1/account/%s/devices/active", id), nil, &out, authAccount); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDevice fetches GET /account/{id}/devices/{pubkey}.
func (c *Client) GetDevice(ctx context.Context, id, pubkey string) (*Device, error) {
	var out Device
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/public/v1/account/%s/devices/%s", id, pubkey), nil, &out, authAccount); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateDevice performs PATCH /account/{id}/devices/{pubkey}.
func (c *Client) UpdateDevice(ctx context.Context, id, pubkey string, active bool) (*Device, error) {
	var out Device
	body := struct {
		Active bool `json:"active"`
	}{Active: active}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/public/v1/account/%s/devices/%s", id, pubkey), body, &out, authDevice); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListZkNyms fetches GET /account/{id}/devices/{pubkey}/zknyms.
func (c *Client) ListZkNyms(ctx context.Context, id, pubkey string) ([]ZkNymStatusResponse, error) {
	var out []ZkNymStatusResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/public/v1/account/%s/devices/%s/zknyms", id, pubkey), nil, &out, authDevice); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestZkNym performs POST /account/{id}/devices/{pubkey}/zknyms.
func (c *Client) RequestZkNym(ctx context.Context, id, pubkey string, req ZkNymRequest) (*ZkNymStatusResponse, error) {
	var out ZkNymStatusResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/public/v1/account/%s/devices/%s/zknyms", id, pubkey), req, &out, authDevice); err != nil {
		return nil, err
	}
	return &out, nil
}

// AvailableZkNyms fetches GET .../zknyms/available.
func (c *Client) AvailableZkNyms(ctx context.Context, id, pubkey string) ([]ZkNymStatusResponse, error) {
	var out []ZkNymStatusResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/public/v1/account/%s/devices/%s/zknyms/available", id, pubkey), nil, &out, authDevice); err != nil {
		return nil, err
	}
	return out, nil
}

// GetZkNymByID fetches GET .../zknyms/{id}.
func (c *Client) GetZkNymByID(ctx context.Context, id, pubkey, zkNymID string) (*ZkNymStatusResponse, error) {
	var out ZkNymStatusResponse
	path := fmt.Sprintf("/public/v1/account/%s/devices/%s/zknyms/%s", id, pubkey, zkNymID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, authDevice); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmZkNymDownloaded performs DELETE .../zknyms/{id}, marking the
// partial wallet consumed on the server side once it has been persisted
// locally.
func (c *Client) ConfirmZkNymDownloaded(ctx context.Context, id, pubkey, zkNymID string) error {
	path := fmt.Sprintf("/public/v1/account/%s/devices/%s/zknyms/%s", id, pubkey, zkNymID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, authDevice)
}

// GetUsage fetches GET /account/{id}/usage.
func (c *Client) GetUsage(ctx context.Context, id string) (*UsageResponse, error) {
	var out UsageResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/public/v1/account/%s/usage", id), nil, &out, authAccount); err != nil {
		return nil, err
	}
	return &out, nil
}

// GatewayDirectionFilter narrows /directory/gateways listings.
type GatewayDirectionFilter string

const (
	GatewaysAll   GatewayDirectionFilter = ""
	GatewaysEntry GatewayDirectionFilter = "/entry"
	GatewaysExit  GatewayDirectionFilter = "/exit"
)

// ListGateways fetches GET /directory/gateways[/entry|exit].
func (c *Client) ListGateways(ctx context.Context, filter GatewayDirectionFilter) ([]GatewayResponse, error) {
	var out []GatewayResponse
	if err := c.do(ctx, http.MethodGet, "/public/v1/directory/gateways"+string(filter), nil, &out, authNone); err != nil {
		return nil, err
	}
	return out, nil
}

// ListGatewayCountries fetches GET /directory/gateways[/entry|exit]/countries.
func (c *Client) ListGatewayCountries(ctx context.Context, filter GatewayDirectionFilter) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, "/public/v1/directory/gateways"+string(filter)+"/countries", nil, &out, authNone); err != nil {
		return nil, err
	}
	return out, nil
}

// PartialVerificationKeys fetches GET
// /directory/zk-nyms/ticketbook/partial-verification-keys.
func (c *Client) PartialVerificationKeys(ctx context.Context) (*PartialVerificationKeyResponse, error) {
	var out PartialVerificationKeyResponse
	if err := c.do(ctx, http.MethodGet, "/public/v1/directory/zk-nyms/ticketbook/partial-verification-keys", nil, &out, authNone); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentNetworkEnv fetches GET /wellknown/current-env.
func (c *Client) CurrentNetworkEnv(ctx context.Context) (*NetworkEnvResponse, error) {
	var out NetworkEnvResponse
	if err := c.do(ctx, http.MethodGet, "/public/v1/wellknown/current-env", nil, &out, authNone); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches GET /health and is also used internally to drive the
// clock-resync retry.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/public/v1/health", nil, &out, authNone); err != nil {
		return nil, err
	}
	return &out, nil
}
