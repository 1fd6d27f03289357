package utils

import (
	"errors"
	"testing"
	"time"

	"pixconv/models"
)

var secret = []byte("test-secret-key-for-jwt-signing-at-least-32-bytes-long")

func TestEdgeTokenRoundTrip(t *testing.T) {
	token, err := CreateEdgeToken(secret, "cli", time.Minute)
	if err != nil {
		t.Fatalf("CreateEdgeToken: %v", err)
	}
	claims, err := VerifyEdgeToken(token, VerifyConfig{SecretKey: secret, ExpectedIssuer: EdgeTokenIssuer})
	if err != nil {
		t.Fatalf("VerifyEdgeToken: %v", err)
	}
	if claims.Subject != "cli" || claims.Issuer != EdgeTokenIssuer {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestVerifyEdgeTokenRejects(t *testing.T) {
	expired, _ := SignEdgeClaims(secret, &models.EdgeClaims{Subject: "x", ExpiresAt: time.Now().Add(-time.Hour).Unix()})
	future, _ := SignEdgeClaims(secret, &models.EdgeClaims{Subject: "x", IssuedAt: time.Now().Add(time.Hour).Unix()})
	valid, _ := CreateEdgeToken(secret, "x", time.Minute)

	tests := []struct {
		name  string
		token string
		cfg   VerifyConfig
		want  error
	}{
		{"empty", "", VerifyConfig{SecretKey: secret}, ErrInvalidToken},
		{"garbage", "not.a.jwt", VerifyConfig{SecretKey: secret}, ErrInvalidToken},
		{"wrong key", valid, VerifyConfig{SecretKey: []byte("another-secret-key-of-sufficient-length!!")}, ErrInvalidSignature},
		{"expired", expired, VerifyConfig{SecretKey: secret}, ErrTokenExpired},
		{"issued in future", future, VerifyConfig{SecretKey: secret}, ErrTokenNotYetValid},
		{"issuer", valid, VerifyConfig{SecretKey: secret, ExpectedIssuer: "someone-else"}, ErrInvalidIssuer},
	}
	for _, tt := range tests {
		if _, err := VerifyEdgeToken(tt.token, tt.cfg); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestGenerateRandomHex(t *testing.T) {
	a, err := GenerateRandomHex(16)
	if err != nil || len(a) != 32 {
		t.Fatalf("GenerateRandomHex = %q, %v", a, err)
	}
	b, _ := GenerateRandomHex(16)
	if a == b {
		t.Error("two random keys collided")
	}
}
