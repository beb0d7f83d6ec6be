package apiclient

import (
	"context"
	"fmt"

	"github.com/opencpx/cpx/pkg/keyring"
)

// SaltReply is the get_salt result: the one-shot salt plus the node's
// RSA public key components in hex.
type SaltReply struct {
	Salt   string `json:"salt"`
	PubKey struct {
		E string `json:"E"`
		N string `json:"N"`
	} `json:"pubkey"`
}

// LoginOptions are the endpoint options posted with the credentials.
type LoginOptions struct {
	VoipEndpoint     string `json:"voipendpoint,omitempty"`
	VoipEndpointData string `json:"voipendpointdata,omitempty"`
	UseOutbandRing   bool   `json:"useoutbandring,omitempty"`
}

// LoginReply is the successful login result.
type LoginReply struct {
	Profile   string `json:"profile"`
	StateTime int64  `json:"statetime"`
	Timestamp int64  `json:"timestamp"`
}

// AgentSnapshot is the agent view returned by check_cookie.
type AgentSnapshot struct {
	Login     string   `json:"login"`
	Profile   string   `json:"profile"`
	Skills    []string `json:"skills,omitempty"`
	State     string   `json:"state"`
	StateData string   `json:"statedata,omitempty"`
	StateTime int64    `json:"statetime"`
	Timestamp int64    `json:"timestamp"`
	MediaLoad int      `json:"mediaload,omitempty"`
}

// GetSalt runs the first handshake step.
func (c *Client) GetSalt(ctx context.Context) (SaltReply, error) {
	var salt SaltReply
	err := c.call(ctx, &salt, "get_salt")
	return salt, err
}

// Login runs the full handshake: fetch a salt, encrypt the salt-prefixed
// password with the node key, post the credentials.
func (c *Client) Login(ctx context.Context, username, password string, opts LoginOptions) (LoginReply, error) {
	var out LoginReply

	salt, err := c.GetSalt(ctx)
	if err != nil {
		return out, err
	}

	cipher, err := keyring.EncryptCredentials(salt.PubKey.E, salt.PubKey.N, salt.Salt, password)
	if err != nil {
		return out, fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	err = c.call(ctx, &out, "login", username, cipher, opts)
	return out, err
}

// Logout drops the agent binding; the session cookie stays valid.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, nil, "logout")
}

// CheckCookie identifies the session's agent.
func (c *Client) CheckCookie(ctx context.Context) (AgentSnapshot, error) {
	var snap AgentSnapshot
	err := c.call(ctx, &snap, "check_cookie")
	return snap, err
}
