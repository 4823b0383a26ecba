package backend

import (
	"context"
	"net/http"

	"dilution-ops-backend/internal/pharmacy"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (*pharmacy.LoginResponse, error) {
	var out pharmacy.LoginResponse
	err := c.do(ctx, Anonymous, "log in", http.MethodPost, "/auth/login", loginRequest{Username: username, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
