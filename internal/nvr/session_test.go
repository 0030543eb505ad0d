package nvr

import (
	"context"
	"testing"
)

func TestOpenAndClose(t *testing.T) {
	device := newStubDevice(t)

	session, err := Open(context.Background(), device.params(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if device.logins() != 1 {
		t.Errorf("logins = %d, want 1", device.logins())
	}

	// Close must be idempotent.
	session.Close()
	session.Close()
}

func TestOpenInvalidCredentials(t *testing.T) {
	device := newStubDevice(t)
	params := device.params(t)
	params.Password = "wrong"

	_, err := Open(context.Background(), params)
	if err == nil {
		t.Fatal("Open succeeded with bad credentials")
	}
	if KindOf(err) != KindAuth {
		t.Errorf("error kind = %q, want %q", KindOf(err), KindAuth)
	}
}

func TestOpenUnreachableHost(t *testing.T) {
	device := newStubDevice(t)
	params := device.params(t)
	device.server.Close()

	_, err := Open(context.Background(), params)
	if err == nil {
		t.Fatal("Open succeeded against a closed server")
	}
	if KindOf(err) != KindConnect {
		t.Errorf("error kind = %q, want %q", KindOf(err), KindConnect)
	}
}

func TestOpenMissingParams(t *testing.T) {
	_, err := Open(context.Background(), ConnectionParams{Username: "admin"})
	if err == nil || KindOf(err) != KindValidation {
		t.Errorf("missing host: error kind = %q, want %q", KindOf(err), KindValidation)
	}

	_, err = Open(context.Background(), ConnectionParams{Host: "10.0.0.1"})
	if err == nil || KindOf(err) != KindValidation {
		t.Errorf("missing username: error kind = %q, want %q", KindOf(err), KindValidation)
	}
}

func TestEnsureValidRefreshesExpiringToken(t *testing.T) {
	device := newStubDevice(t)
	// Lifetime shorter than the renewal margin, so the token is due for
	// renewal immediately after login.
	device.tokenLifetime = 60

	session, err := Open(context.Background(), device.params(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	if err := session.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if device.logins() != 2 {
		t.Errorf("logins = %d, want 2 (renewal expected)", device.logins())
	}
}

func TestEnsureValidRenewsInsideTenMinuteMargin(t *testing.T) {
	device := newStubDevice(t)
	// Eight minutes of lifetime falls inside the ten-minute renewal
	// window, so the first EnsureValid must log in again.
	device.tokenLifetime = 480

	session, err := Open(context.Background(), device.params(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	if err := session.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if device.logins() != 2 {
		t.Errorf("logins = %d, want 2 (renewal expected)", device.logins())
	}
}

func TestEnsureValidKeepsFreshToken(t *testing.T) {
	device := newStubDevice(t)

	session, err := Open(context.Background(), device.params(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	if err := session.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if device.logins() != 1 {
		t.Errorf("logins = %d, want 1 (no renewal expected)", device.logins())
	}
}

func TestAPICallReauthenticatesOnRejectedToken(t *testing.T) {
	device := newStubDevice(t)

	session, err := Open(context.Background(), device.params(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	device.revokeToken()

	var result channelListResult
	if err := session.do(context.Background(), "GET", "/openapi/channels", nil, &result); err != nil {
		t.Fatalf("do failed after token revocation: %v", err)
	}
	if device.logins() != 2 {
		t.Errorf("logins = %d, want 2 (one re-authentication)", device.logins())
	}
	if len(result.ChannelList) == 0 {
		t.Error("no channels returned after re-authentication")
	}
}
