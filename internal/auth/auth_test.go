package auth

import "testing"

func TestJWTRoundTrip(t *testing.T) {
	a := NewAuthService("test-secret", "admin", "")

	tok, err := a.IssueJWT("student-1", RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := a.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Sub != "student-1" || claims.Role != RoleUser {
		t.Fatalf("claims = %s/%s, want student-1/user", claims.Sub, claims.Role)
	}
}

func TestParseRejectsForeignToken(t *testing.T) {
	a := NewAuthService("secret-a", "admin", "")
	b := NewAuthService("secret-b", "admin", "")

	tok, err := a.IssueJWT("student-1", RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Parse(tok); err == nil {
		t.Fatal("token signed with another secret was accepted")
	}
}
