package api

import (
	"context"
	"net/http"

	"github.com/lexdrum/lexdrum/internal/session"
)

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	IsAdmin     bool   `json:"is_admin"`
}

// Login implements session.Gateway.
func (c *Client) Login(ctx context.Context, username, password string) (session.LoginResult, error) {
	var resp loginResp
	err := c.do(ctx, http.MethodPost, "/login", nil, loginReq{Username: username, Password: password}, &resp)
	if err != nil {
		return session.LoginResult{}, err
	}
	return session.LoginResult{
		Token:     resp.AccessToken,
		TokenType: resp.TokenType,
		IsAdmin:   resp.IsAdmin,
	}, nil
}

// RegisterResult is the created account.
type RegisterResult struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (c *Client) Register(ctx context.Context, username, password string) (RegisterResult, error) {
	var resp RegisterResult
	err := c.do(ctx, http.MethodPost, "/register", nil, loginReq{Username: username, Password: password}, &resp)
	return resp, err
}
