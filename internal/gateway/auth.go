package gateway

import (
	"context"
	"net/http"
	"strings"
)

// Login authenticates against the admin login endpoint.
func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResult, error) {
	return c.login(ctx, "/auth/login", "auth.login", creds)
}

// ClientLogin authenticates a shop customer.
func (c *Client) ClientLogin(ctx context.Context, creds Credentials) (AuthResult, error) {
	return c.login(ctx, "/auth/client/login", "auth.client_login", creds)
}

func (c *Client) login(ctx context.Context, path, endpoint string, creds Credentials) (AuthResult, error) {
	identifier := strings.TrimSpace(creds.Identifier)
	body := map[string]string{"password": creds.Password}
	if strings.Contains(identifier, "@") {
		body["email"] = identifier
	} else {
		body["username"] = identifier
	}

	raw, err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     path,
		endpoint: endpoint,
		body:     body,
		fallback: "login failed",
	})
	if err != nil {
		return AuthResult{}, err
	}
	return decodeAuthResult(endpoint, raw)
}

func (c *Client) Register(ctx context.Context, reg Registration) (AuthResult, error) {
	raw, err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/auth/register",
		endpoint: "auth.register",
		body:     reg,
		fallback: "registration failed",
	})
	if err != nil {
		return AuthResult{}, err
	}
	return decodeAuthResult("auth.register", raw)
}

func decodeAuthResult(endpoint string, raw []byte) (AuthResult, error) {
	var result AuthResult
	if err := decodeObject(raw, &result); err != nil {
		return AuthResult{}, malformed(endpoint, err)
	}
	if strings.TrimSpace(result.Token) == "" || result.User.ID <= 0 {
		return AuthResult{}, malformed(endpoint, nil)
	}
	return result, nil
}

// Logout revokes the token upstream.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/logout",
		endpoint:    "auth.logout",
		token:       token,
		requireAuth: true,
		fallback:    "logout failed",
	})
	return err
}

// CurrentUser resolves the account behind token.
func (c *Client) CurrentUser(ctx context.Context, token string) (User, error) {
	raw, err := c.do(ctx, request{
		method:      http.MethodGet,
		path:        "/auth/user",
		endpoint:    "auth.current_user",
		token:       token,
		requireAuth: true,
		fallback:    "could not load current user",
	})
	if err != nil {
		return User{}, err
	}
	user, err := decodeUser(raw)
	if err != nil {
		return User{}, malformed("auth.current_user", err)
	}
	return user, nil
}

func (c *Client) UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (User, error) {
	raw, err := c.do(ctx, request{
		method:      http.MethodPut,
		path:        "/auth/profile/",
		endpoint:    "auth.update_profile",
		token:       token,
		requireAuth: true,
		body:        update,
		fallback:    "could not update profile",
	})
	if err != nil {
		return User{}, err
	}
	user, err := decodeUser(raw)
	if err != nil {
		return User{}, malformed("auth.update_profile", err)
	}
	return user, nil
}

func (c *Client) ChangePassword(ctx context.Context, token string, change PasswordChange) error {
	_, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/change-password/",
		endpoint:    "auth.change_password",
		token:       token,
		requireAuth: true,
		body:        change,
		fallback:    "could not change password",
	})
	return err
}
