package bridge

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/berfenger/battseq/internal/core/port"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type HTTPConfig struct {
	Host     string
	BaseURI  string
	Username string
	Password string
}

type valueEnvelope struct {
	Data struct {
		Data int `json:"data"`
	} `json:"data"`
}

type loginRequest struct {
	UserCredentials struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	} `json:"userCredentials"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// HTTPExchanger reads endpoints with GET and writes them with POST, both
// wrapped in {"data":{"data":<int>}}. Requests carry a bearer token that is
// fetched lazily and dropped on 401.
type HTTPExchanger struct {
	client *http.Client
	cfg    HTTPConfig
	logger *zap.Logger

	mu    sync.Mutex
	token string
}

func NewHTTPExchanger(client *http.Client, cfg HTTPConfig, logger *zap.Logger) *HTTPExchanger {
	return &HTTPExchanger{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "http_bridge")),
	}
}

func (e *HTTPExchanger) loginURL() string {
	return fmt.Sprintf("http://%s/login", e.cfg.Host)
}

func (e *HTTPExchanger) endpointURL(endpoint string) string {
	base := strings.Trim(e.cfg.BaseURI, "/")
	if base == "" {
		return fmt.Sprintf("http://%s/%s", e.cfg.Host, endpoint)
	}
	return fmt.Sprintf("http://%s/%s/%s", e.cfg.Host, base, endpoint)
}

func (e *HTTPExchanger) Exchange(ctx context.Context, req port.Request) (port.Response, error) {
	token, err := e.ensureToken(ctx)
	if err != nil {
		return port.Response{}, err
	}

	method := http.MethodGet
	var body []byte
	if req.Write {
		method = http.MethodPost
		var payload valueEnvelope
		payload.Data.Data = req.Value
		if body, err = json.Marshal(payload); err != nil {
			return port.Response{}, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, e.endpointURL(req.Endpoint), bytes.NewReader(body))
	if err != nil {
		return port.Response{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if req.Write {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return port.Response{}, fmt.Errorf("http bridge: %s %s: %w", method, req.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		e.dropToken(token)
		return port.Response{}, fmt.Errorf("http bridge: %s: %w", req.Endpoint, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return port.Response{}, fmt.Errorf("http bridge: %s %s: status %d", method, req.Endpoint, resp.StatusCode)
	}

	var envelope valueEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if req.Write {
			// some firmwares answer writes with an empty body
			return port.Response{Value: req.Value}, nil
		}
		return port.Response{}, fmt.Errorf("http bridge: %s: decode: %w", req.Endpoint, err)
	}
	return port.Response{Value: envelope.Data.Data}, nil
}

func (e *HTTPExchanger) ensureToken(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token != "" {
		return e.token, nil
	}

	var creds loginRequest
	creds.UserCredentials.Name = e.cfg.Username
	creds.UserCredentials.Password = e.cfg.Password
	body, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.loginURL(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http bridge: login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("http bridge: login: %w", ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http bridge: login: status %d", resp.StatusCode)
	}

	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return "", fmt.Errorf("http bridge: login: decode: %w", err)
	}
	if login.Token == "" {
		return "", fmt.Errorf("http bridge: login: empty token")
	}
	e.token = login.Token
	e.logger.Info("http bridge: logged in", zap.String("host", e.cfg.Host))
	return e.token, nil
}

// dropToken forgets token unless another request already replaced it.
func (e *HTTPExchanger) dropToken(token string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token == token {
		e.token = ""
		e.logger.Warn("http bridge: token rejected, will log in again")
	}
}

// ensure interface compliance
var _ Exchanger = (*HTTPExchanger)(nil)
