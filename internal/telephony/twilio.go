package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/voxdial/voxdial-core/internal/config"
)

// TwilioGateway talks to the Twilio REST API with basic auth and
// form-encoded requests.
type TwilioGateway struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewTwilioGateway(cfg config.TelephonyConfig, log *slog.Logger) (*TwilioGateway, error) {
	if cfg.AccountSID == "" {
		return nil, fmt.Errorf("account SID is required")
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("auth token is required")
	}
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = "https://api.twilio.com/2010-04-01"
	}
	return &TwilioGateway{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With(slog.String("component", "twilio-gateway")),
	}, nil
}

// callResource mirrors the provider's call representation.
type callResource struct {
	SID       string `json:"sid"`
	To        string `json:"to"`
	From      string `json:"from"`
	Status    string `json:"status"`
	Duration  string `json:"duration"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Message   string `json:"message"`
}

func (g *TwilioGateway) CreateCall(ctx context.Context, params CreateParams) (Call, error) {
	form := url.Values{}
	form.Set("To", params.To)
	form.Set("From", params.From)
	form.Set("Twiml", params.InstructionDoc)
	if params.StatusCallback != "" {
		form.Set("StatusCallback", params.StatusCallback)
		for _, event := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", event)
		}
	}
	if params.Timeout > 0 {
		form.Set("Timeout", strconv.Itoa(params.Timeout))
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", g.baseURL, g.accountSID)
	resource, err := g.post(ctx, "create call", endpoint, form)
	if err != nil {
		return Call{}, err
	}

	g.log.Info("call created",
		slog.String("call_sid", resource.SID),
		slog.String("to", params.To),
		slog.String("status", resource.Status))

	return callFromResource(resource), nil
}

func (g *TwilioGateway) UpdateCallStatus(ctx context.Context, callID, status string) error {
	form := url.Values{}
	form.Set("Status", status)
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", g.baseURL, g.accountSID, callID)
	if _, err := g.post(ctx, "update call status", endpoint, form); err != nil {
		return err
	}
	g.log.Info("call status updated", slog.String("call_sid", callID), slog.String("status", status))
	return nil
}

func (g *TwilioGateway) FetchCall(ctx context.Context, callID string) (Call, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", g.baseURL, g.accountSID, callID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Call{}, &GatewayError{Op: "fetch call", Err: err}
	}
	req.SetBasicAuth(g.accountSID, g.authToken)

	resource, err := g.do(req, "fetch call")
	if err != nil {
		return Call{}, err
	}
	return callFromResource(resource), nil
}

func (g *TwilioGateway) post(ctx context.Context, op, endpoint string, form url.Values) (callResource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return callResource{}, &GatewayError{Op: op, Err: err}
	}
	req.SetBasicAuth(g.accountSID, g.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return g.do(req, op)
}

func (g *TwilioGateway) do(req *http.Request, op string) (callResource, error) {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return callResource{}, &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return callResource{}, &GatewayError{Op: op, Status: resp.StatusCode, Err: err}
	}

	var resource callResource
	if err := json.Unmarshal(body, &resource); err != nil && resp.StatusCode < 300 {
		return callResource{}, &GatewayError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.StatusCode >= 300 {
		message := resource.Message
		if message == "" {
			message = strings.TrimSpace(string(body))
		}
		return callResource{}, &GatewayError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%s", message)}
	}
	return resource, nil
}

func callFromResource(r callResource) Call {
	return Call{
		SID:       r.SID,
		To:        r.To,
		From:      r.From,
		Status:    r.Status,
		Duration:  r.Duration,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
	}
}
