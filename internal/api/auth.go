package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrNoToken is returned when the login response carries no token.
	ErrNoToken = errors.New("token not returned from login")

	// ErrNoAccount is returned when the identity response carries no investor id.
	ErrNoAccount = errors.New("investor id not returned from identity endpoint")
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type meResponse struct {
	InvestorID json.RawMessage `json:"investorId"`
}

// Login exchanges username and password for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	req := loginRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, c.loginURL, "", req, &resp); err != nil {
		return "", err
	}

	if resp.Token == "" {
		return "", ErrNoToken
	}

	c.logger.Debug("login succeeded")
	return resp.Token, nil
}

// Me resolves the account identifier that owns token.
func (c *Client) Me(ctx context.Context, token string) (string, error) {
	var resp meResponse
	if err := c.do(ctx, http.MethodGet, c.meURL, token, nil, &resp); err != nil {
		return "", err
	}

	id := accountID(resp.InvestorID)
	if id == "" {
		return "", ErrNoAccount
	}

	c.logger.Debug("identity resolved", "account_id", id)
	return id, nil
}

// accountID accepts the investor id as either a JSON string or number.
func accountID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return ""
}
