package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/utafrali/authgate/pkg/errors"
	"github.com/utafrali/authgate/pkg/httpclient"
)

// Doer sends HTTP requests. *httpclient.CircuitBreakerClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

type apiRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// HTTPSender posts messages to a transactional mail API.
type HTTPSender struct {
	client Doer
	url    string
	apiKey string
	from   string
}

// NewHTTPSender creates a sender for the mail API at url.
func NewHTTPSender(client Doer, url, apiKey, from string) *HTTPSender {
	return &HTTPSender{client: client, url: url, apiKey: apiKey, from: from}
}

func (s *HTTPSender) Name() string { return "http" }

func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	req, err := httpclient.NewJSONRequest(ctx, s.url, apiRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	if err != nil {
		return err
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		if errors.Is(err, httpclient.ErrCircuitOpen) {
			return apperrors.Unavailable("mail api is unavailable", err)
		}
		return fmt.Errorf("send email: %w", err)
	}
	if resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, "mail api")
	}
	_ = resp.Body.Close()
	return nil
}
