package models

// EdgeClaims is the JWT payload a client presents to the edge endpoint.
type EdgeClaims struct {
	Issuer    string `json:"iss,omitempty"`
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	// MaxBytes optionally caps the upload size the token authorizes.
	MaxBytes int64 `json:"maxBytes,omitempty"`
}
