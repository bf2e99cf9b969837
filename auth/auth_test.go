package auth

import "testing"

func TestSealUnsealCookie(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	p := NewPlane(nil, SelfCredential{}, key, "example.com")

	want := Authentication{Principal: "alice", UserID: 42, CanWrite: true, CanAdmin: false}
	sealed, err := p.SealCookie(want)
	if err != nil {
		t.Fatalf("SealCookie: %v", err)
	}

	got, err := p.UnsealCookie(sealed)
	if err != nil {
		t.Fatalf("UnsealCookie: %v", err)
	}
	if *got != want {
		t.Fatalf("got %+v, want %+v", *got, want)
	}
}

func TestUnsealCookieRejectsTampering(t *testing.T) {
	var key [32]byte
	p := NewPlane(nil, SelfCredential{}, key, "example.com")

	sealed, err := p.SealCookie(Authentication{Principal: "alice"})
	if err != nil {
		t.Fatalf("SealCookie: %v", err)
	}
	tampered := sealed[:len(sealed)-2] + "AA"
	if _, err := p.UnsealCookie(tampered); err == nil {
		t.Fatal("expected tampered cookie to fail to unseal")
	}
}

func TestConstantTimeEq(t *testing.T) {
	if !constantTimeEq("secret", "secret") {
		t.Error("expected equal strings to compare equal")
	}
	if constantTimeEq("secret", "different") {
		t.Error("expected different strings to compare unequal")
	}
}
