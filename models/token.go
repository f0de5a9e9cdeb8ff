package models

import "time"

// TokenData is the transient, decrypted form of an integration's
// credentials. It is never persisted as-is.
type TokenData struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Scope        string
	Metadata     map[string]any
}

// Channel is a provider-defined postable destination: a chat channel,
// a ticket list, a project board.
type Channel struct {
	ID       string
	Name     string
	Kind     string
	Metadata map[string]any
}

// Message is the composed payload posted to a channel on a note event.
type Message struct {
	Title      string
	Content    string
	Author     string
	NoteURL    string
	ChangeType string
}

// OAuthCallbackParams is the callback shape consumed at the web
// boundary. OAuthToken supports three-legged 1.0a-style flows.
type OAuthCallbackParams struct {
	OrganizationID   string
	Code             string
	State            string
	Error            string
	ErrorDescription string
	OAuthToken       string
}

// OAuthState is the decoded form of a signed state token.
type OAuthState struct {
	OrganizationID string            `json:"organization_id"`
	Provider       string            `json:"provider"`
	Nonce          string            `json:"nonce"`
	IssuedAt       int64             `json:"issued_at"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}
