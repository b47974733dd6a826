package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"checkin-station/internal/status"
	"checkin-station/models"
	"checkin-station/utils"
)

// Envelope is the authority's verification response. Success false with a
// message is a business rejection; transport failures never produce an
// Envelope at all.
type Envelope struct {
	Success bool                   `json:"success"`
	Data    *models.TicketSnapshot `json:"data,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// Client talks to the remote ticketing authority. Every method distinguishes
// transport failures (wrapped status.ErrTransport) from responses the server
// actually produced.
type Client interface {
	VerifyTicket(ctx context.Context, payload models.CheckInRequest) (*Envelope, error)
	Login(ctx context.Context, email, password string) error
	Logout()
	ListEvents(ctx context.Context, start, end time.Time) ([]models.Event, error)
	Ping(ctx context.Context) error
}

type (
	Config struct {
		// BaseURL is the root of the authority's API, e.g. https://api.example.com.
		BaseURL string `json:"base_url"`

		// Timeout bounds every round trip.
		Timeout time.Duration `json:"timeout"`

		Breaker utils.BreakerSettings `json:"breaker"`
	}

	client struct {
		baseURL string

		// session is shared by reference with the rest of the station;
		// login and token refresh mutate it.
		session *models.StaffSession

		// breaker guards verification calls against a flapping uplink.
		breaker *utils.CircuitBreaker

		// hc is the http client.
		hc *http.Client
	}
)

var _ Client = (*client)(nil)

// New creates a verification client bound to the given staff session.
func New(cfg *Config, session *models.StaffSession) Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &client{
		baseURL: cfg.BaseURL,
		session: session,
		breaker: utils.NewCircuitBreaker("ticket-authority", cfg.Breaker),
		hc: &http.Client{
			Timeout: timeout,
		},
	}
}

// VerifyTicket submits one check-in. A returned error is always a transport
// failure (or context cancellation); any answer the server gave, including
// rejections, comes back as an Envelope.
func (c *client) VerifyTicket(ctx context.Context, payload models.CheckInRequest) (*Envelope, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	var env *Envelope
	err := c.breaker.Execute(ctx, func() error {
		var reqErr error
		env, reqErr = c.postVerify(ctx, payload, true)
		return reqErr
	})
	if err != nil {
		if errors.Is(err, utils.ErrBreakerOpen) {
			return nil, fmt.Errorf("%w: %v", status.ErrTransport, err)
		}
		return nil, err
	}
	return env, nil
}

func (c *client) postVerify(ctx context.Context, payload models.CheckInRequest, allowRefresh bool) (*Envelope, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/api/v1/checkin/verify", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		if !allowRefresh {
			return nil, status.ErrSessionExpired
		}
		if err := c.refreshTokens(ctx); err != nil {
			return nil, err
		}
		return c.postVerify(ctx, payload, false)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", status.ErrTransport, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return &Envelope{Success: false, Message: "Verification failed"}, nil
		}
		return &env, nil
	}

	// The server answered with a rejection. Compose its primary and field
	// level messages into one reason; this is definitive, never queued.
	return &Envelope{Success: false, Message: rejectionMessage(body)}, nil
}

// rejectionMessage flattens the authority's error body, which carries a top
// level message plus optional per-field details for the ticket number.
func rejectionMessage(body []byte) string {
	var reply struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Errors  struct {
			TicketNumber []struct {
				Message string `json:"message"`
			} `json:"ticket_number"`
		} `json:"errors"`
	}

	primary := "Verification failed"
	if err := json.Unmarshal(body, &reply); err != nil {
		return primary
	}
	if reply.Message != "" {
		primary = reply.Message
	}

	secondary := reply.Error
	if len(reply.Errors.TicketNumber) > 0 && reply.Errors.TicketNumber[0].Message != "" {
		secondary = reply.Errors.TicketNumber[0].Message
	}
	if secondary != "" {
		return fmt.Sprintf("%s: %s", primary, secondary)
	}
	return primary
}

// Login authenticates the staff member and adopts the identity and tokens
// into the shared session.
func (c *client) Login(ctx context.Context, email, password string) error {
	form := map[string]string{"email": email, "password": password}

	resp, err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply struct {
		Data struct {
			User struct {
				ID        string `json:"id"`
				FirstName string `json:"firstName"`
				Role      string `json:"role"`
			} `json:"user"`
			Tokens struct {
				AccessToken  string `json:"accessToken"`
				RefreshToken string `json:"refreshToken"`
			} `json:"tokens"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("login: json.Decode: %w", err)
	}

	c.session.Adopt(
		reply.Data.User.ID,
		reply.Data.User.FirstName,
		reply.Data.User.Role,
		reply.Data.Tokens.AccessToken,
		reply.Data.Tokens.RefreshToken,
	)
	return nil
}

func (c *client) Logout() {
	c.session.Clear()
}

// refreshTokens exchanges the refresh token for a new pair. Failure means the
// session is expired; the server was reachable, so this is not a transport
// failure.
func (c *client) refreshTokens(ctx context.Context) error {
	form := map[string]string{"refresh_token": c.session.RefreshToken()}

	resp, err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/refresh", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return status.ErrSessionExpired
	}

	var reply struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("refreshTokens: json.Decode: %w", err)
	}

	c.session.SetTokens(reply.AccessToken, reply.RefreshToken)
	return nil
}

// ListEvents fetches the events running between start and end for the event
// browse surface.
func (c *client) ListEvents(ctx context.Context, start, end time.Time) ([]models.Event, error) {
	path := fmt.Sprintf("/api/v1/events?start_date=%s&end_date=%s",
		url.QueryEscape(start.Format("2006-01-02")),
		url.QueryEscape(end.Format("2006-01-02")),
	)

	resp, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("listEvents: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply struct {
		Data struct {
			Events []models.Event `json:"events"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("listEvents: json.Decode: %w", err)
	}
	return reply.Data.Events, nil
}

// Ping probes the authority's health endpoint. It bypasses the breaker so the
// connectivity watcher can observe recovery while the breaker is still open.
func (c *client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("ping: http.NewRequestWithContext: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return classifyTransport("ping", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: ping: resp.StatusCode: %d", status.ErrTransport, resp.StatusCode)
	}
	return nil
}

// doJSON builds and executes one request with the session's bearer token.
// Errors it returns are transport failures or context cancellation.
func (c *client) doJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("doJSON: json.Marshal: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("doJSON: http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.session.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, classifyTransport(method+" "+path, err)
	}
	return resp, nil
}

// classifyTransport wraps connection level failures as ErrTransport while
// letting caller-driven cancellation through untouched.
func classifyTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", status.ErrTransport, op, err)
}
