package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookingfast/internal/common"
	"bookingfast/internal/domain/workflow"
)

const providerName = "sms"

var _ workflow.SMSGateway = (*FunctionGateway)(nil)

// FunctionGateway posts messages to the send-sms edge function. The function
// holds each owner's carrier credentials and sending number.
type FunctionGateway struct {
	endpoint   string
	serviceKey string
	httpClient *http.Client
}

// NewFunctionGateway creates a gateway for the function at endpoint,
// authenticated with the service role key.
func NewFunctionGateway(endpoint, serviceKey string, timeout time.Duration) *FunctionGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FunctionGateway{
		endpoint:   endpoint,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FunctionURL returns the send-sms endpoint under a Supabase project URL.
func FunctionURL(supabaseURL string) string {
	return strings.TrimRight(supabaseURL, "/") + "/functions/v1/send-sms"
}

// SendSMS delivers one message. A rejection because the owner has no active
// SMS configuration is returned as a ConfigurationError; every other non-2xx
// answer is a ProviderError.
func (g *FunctionGateway) SendSMS(ctx context.Context, in *workflow.SMSRequest) (*workflow.SMSResponse, error) {
	if g.endpoint == "" || g.serviceKey == "" {
		return nil, common.NewConfigurationError("sms gateway endpoint or key not set")
	}

	jsonData, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshaling sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.serviceKey)
	req.Header.Set("apikey", g.serviceKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, common.NewProviderError(providerName, 0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		_ = json.Unmarshal(respBody, &errResp)

		msg := errResp.Error
		if msg == "" {
			msg = errResp.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		if resp.StatusCode == http.StatusPreconditionFailed || errResp.Code == "sms_not_configured" {
			return nil, common.NewConfigurationError("%s", msg)
		}
		return nil, common.NewProviderError(providerName, resp.StatusCode, msg)
	}

	var out workflow.SMSResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parsing sms response: %w", err)
	}
	return &out, nil
}
