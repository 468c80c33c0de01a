package apiclient

import (
	"context"
	"net/http"
	"time"
)

const resourceAccount = "account"

// Account is the signed-in user as the server reports it.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// AuthResult is returned by Login and Refresh.
type AuthResult struct {
	Token string  `json:"token"`
	User  Account `json:"user"`
}

// Registration is the sign-up form.
type Registration struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Login exchanges credentials for a session cookie.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	var out AuthResult
	if err := c.call(ctx, "apiclient.login", http.MethodPost, "/auth/login", resourceAccount, body, &out); err != nil {
		return AuthResult{}, err
	}
	return out, nil
}

// Register creates an account and returns the server's confirmation message.
func (c *Client) Register(ctx context.Context, registration Registration) (string, error) {
	var out envelope
	if err := c.call(ctx, "apiclient.register", http.MethodPost, "/auth/register", resourceAccount, registration, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Logout clears the session cookie.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, "apiclient.logout", http.MethodPost, "/auth/logout", resourceAccount, nil, nil)
}

// Refresh re-issues the session token from the current cookie.
func (c *Client) Refresh(ctx context.Context) (AuthResult, error) {
	var out AuthResult
	if err := c.call(ctx, "apiclient.refresh", http.MethodPost, "/auth/refresh", resourceAccount, nil, &out); err != nil {
		return AuthResult{}, err
	}
	return out, nil
}

// Profile returns the signed-in account.
func (c *Client) Profile(ctx context.Context) (Account, error) {
	var out struct {
		User Account `json:"user"`
	}
	if err := c.call(ctx, "apiclient.profile", http.MethodGet, "/protected/profile", resourceAccount, nil, &out); err != nil {
		return Account{}, err
	}
	return out.User, nil
}

// UpdateProfile renames the signed-in account.
func (c *Client) UpdateProfile(ctx context.Context, name string) (Account, error) {
	var out struct {
		User Account `json:"user"`
	}
	body := map[string]string{"name": name}
	if err := c.call(ctx, "apiclient.update_profile", http.MethodPut, "/protected/profile", resourceAccount, body, &out); err != nil {
		return Account{}, err
	}
	return out.User, nil
}
