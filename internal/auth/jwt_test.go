package auth

import (
	"testing"
	"time"
)

const (
	testKey    = "session-key"
	testIssuer = "rollcall-test"
)

func TestIssueAndParse(t *testing.T) {
	session, err := Issue("student-1", RoleAttendee, "G1", testIssuer, testKey, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := Parse(session.Token, testKey, testIssuer)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "student-1" || claims.Role != RoleAttendee || claims.Group != "G1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejects(t *testing.T) {
	session, err := Issue("student-1", RoleAttendee, "G1", testIssuer, testKey, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(session.Token, "wrong-key", testIssuer); err == nil {
		t.Error("foreign key accepted")
	}
	if _, err := Parse(session.Token, testKey, "other-issuer"); err == nil {
		t.Error("foreign issuer accepted")
	}
	expired, err := Issue("student-1", RoleAttendee, "G1", testIssuer, testKey, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(expired.Token, testKey, testIssuer); err == nil {
		t.Error("expired session accepted")
	}
}
