package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioGateway sends through the Twilio Messages API. Every failure
// mode (transport, HTTP status, malformed body) is folded into the
// Result; callers never see a raw provider error.
type TwilioGateway struct {
	accountSID     string
	authToken      string
	from           string
	domesticPrefix string
	baseURL        string
	client         *http.Client
}

func NewTwilioGateway(accountSID, authToken, from, domesticPrefix string) *TwilioGateway {
	return &TwilioGateway{
		accountSID:     accountSID,
		authToken:      authToken,
		from:           from,
		domesticPrefix: domesticPrefix,
		baseURL:        twilioBaseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithBaseURL overrides the API endpoint. Used in tests.
func (g *TwilioGateway) WithBaseURL(u string) *TwilioGateway {
	g.baseURL = u
	return g
}

type twilioResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Message      string `json:"message"`
}

func (g *TwilioGateway) Send(ctx context.Context, destination, body string) Result {
	form := url.Values{}
	form.Set("To", destination)
	form.Set("From", g.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", g.baseURL, g.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{ErrorReason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.accountSID, g.authToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{ErrorReason: fmt.Sprintf("carrier request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var tr twilioResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return Result{ErrorReason: fmt.Sprintf("failed to decode carrier response: %v body=%q", err, string(raw))}
	}

	if resp.StatusCode != http.StatusCreated {
		reason := tr.Message
		if reason == "" {
			reason = fmt.Sprintf("unexpected status code: %d body=%q", resp.StatusCode, string(raw))
		}
		return Result{ErrorReason: reason}
	}
	if tr.SID == "" {
		return Result{ErrorReason: fmt.Sprintf("missing sid in carrier response body=%q", string(raw))}
	}

	return Result{
		Success:           true,
		ProviderMessageID: tr.SID,
		Cost:              EstimateCost(body, destination, g.domesticPrefix),
	}
}
