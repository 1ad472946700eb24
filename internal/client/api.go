package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pulsehq/pulse/internal/domain/user"
)

const sessionCookieName = "pulse_session"

// TokenStore persists the opaque session token between runs. The token
// is the only client-held credential; everything else is re-derived
// from the server on each resolution.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// MemoryTokenStore holds the token in memory only. Good for tests and
// short-lived processes.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.token, nil
}

func (s *MemoryTokenStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token

	return nil
}

func (s *MemoryTokenStore) Clear() error {
	return s.Save("")
}

// FileTokenStore keeps the token in a mode-0600 file, the way a CLI
// keeps its login between invocations.
type FileTokenStore struct {
	Path string
}

func (s *FileTokenStore) Load() (string, error) {
	b, err := os.ReadFile(s.Path)

	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	return strings.TrimSpace(string(b)), nil
}

func (s *FileTokenStore) Save(token string) error {
	return os.WriteFile(s.Path, []byte(token), 0o600)
}

func (s *FileTokenStore) Clear() error {
	err := os.Remove(s.Path)

	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// APIError is a structured failure from the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// Profile is the server's view of the current user plus the derived
// lifecycle state.
type Profile struct {
	ID          string           `json:"id"`
	Email       string           `json:"email"`
	Role        string           `json:"role"`
	State       string           `json:"state"`
	Preferences user.Preferences `json:"preferences"`
	AgentConfig user.AgentConfig `json:"agentConfig"`
}

// Result is the payload of the session-issuing endpoints.
type Result struct {
	AccessToken string  `json:"accessToken"`
	TokenType   string  `json:"tokenType"`
	ExpiresIn   int     `json:"expiresIn"`
	User        Profile `json:"user"`
}

// API talks to the auth surface. The session token rides in a cookie
// header, mirroring what a browser would do, and Set-Cookie responses
// flow back into the token store.
type API struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
}

func New(baseURL string, tokens TokenStore) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
	}
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type completeProfilePayload struct {
	Role        string                  `json:"role"`
	Preferences *user.PreferencesUpdate `json:"preferences,omitempty"`
	AgentConfig *user.AgentConfigUpdate `json:"agentConfig,omitempty"`
}

func (a *API) Login(ctx context.Context, email, password string) (Result, error) {
	var out Result

	err := a.do(ctx, http.MethodPost, "/auth/login", loginPayload{Email: email, Password: password}, &out)

	return out, err
}

func (a *API) SetPassword(ctx context.Context, email, password string) (Result, error) {
	var out Result

	err := a.do(ctx, http.MethodPost, "/auth/set-password", loginPayload{Email: email, Password: password}, &out)

	return out, err
}

func (a *API) CompleteProfile(ctx context.Context, role string, prefs *user.PreferencesUpdate, agentCfg *user.AgentConfigUpdate) (Result, error) {
	var out Result

	payload := completeProfilePayload{Role: role, Preferences: prefs, AgentConfig: agentCfg}

	err := a.do(ctx, http.MethodPost, "/auth/complete-profile", payload, &out)

	return out, err
}

func (a *API) Validate(ctx context.Context) (Profile, error) {
	var out struct {
		User Profile `json:"user"`
	}

	err := a.do(ctx, http.MethodPost, "/auth/validate", nil, &out)

	return out.User, err
}

func (a *API) Refresh(ctx context.Context) (Result, error) {
	var out Result

	err := a.do(ctx, http.MethodPost, "/auth/refresh", nil, &out)

	return out, err
}

func (a *API) Logout(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Reader

	if payload != nil {
		b, err := json.Marshal(payload)

		if err != nil {
			return err
		}

		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)

	if err != nil {
		return err
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token, err := a.tokens.Load(); err == nil && token != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	}

	resp, err := a.http.Do(req)

	if err != nil {
		return err
	}

	defer resp.Body.Close()

	a.captureSession(resp)

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// captureSession mirrors the browser cookie jar: a fresh session cookie
// replaces the stored token, a deletion clears it.
func (a *API) captureSession(resp *http.Response) {
	for _, c := range resp.Cookies() {
		if c.Name != sessionCookieName {
			continue
		}

		if c.MaxAge < 0 || c.Value == "" {
			_ = a.tokens.Clear()
		} else {
			_ = a.tokens.Save(c.Value)
		}
	}
}

func decodeAPIError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: "unknown", Message: resp.Status}
	}

	return &APIError{
		Status:  resp.StatusCode,
		Code:    envelope.Error.Code,
		Message: envelope.Error.Message,
	}
}

// IsAPIError extracts the structured failure, if that is what err is.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError

	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	return nil, false
}
