package sessiongate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/velatir/sessiongate/fingerprint"
	"github.com/velatir/sessiongate/routes"
	"github.com/velatir/sessiongate/twofactor"
)

type stubProbe struct{}

func (stubProbe) Blocked(context.Context) (bool, error) { return false, nil }
func (stubProbe) Release()                              {}

type stubSignals struct{}

func (stubSignals) CanvasHash(context.Context) (string, error)    { return "canvas-1", nil }
func (stubSignals) WebGLRenderer(context.Context) (string, error) { return "webgl-1", nil }
func (stubSignals) AudioSum(context.Context) (string, error)      { return "audio-1", nil }
func (stubSignals) Fonts(context.Context) ([]string, error) {
	return []string{"Inter", "Menlo"}, nil
}
func (stubSignals) ScreenGeometry(context.Context) (fingerprint.ScreenGeometry, error) {
	return fingerprint.ScreenGeometry{Width: 1920, Height: 1080, PixelRatio: 2, ColorDepth: 24}, nil
}
func (stubSignals) HardwareConcurrency(context.Context) (int, error) { return 8, nil }
func (stubSignals) DeviceMemoryGB(context.Context) (float64, error)  { return 16, nil }
func (stubSignals) TouchSupport(context.Context) (bool, error)       { return false, nil }
func (stubSignals) StorageFlags(context.Context) (fingerprint.StorageFlags, error) {
	return fingerprint.StorageFlags{LocalStorage: true, Cookies: true}, nil
}
func (stubSignals) ConnectionType(context.Context) (string, error) { return "wifi", nil }
func (stubSignals) Battery(context.Context) (fingerprint.BatteryState, error) {
	return fingerprint.BatteryState{Present: true, Charging: true, Level: 0.8}, nil
}
func (stubSignals) AcquireBlockerProbe(context.Context) (fingerprint.BlockerProbe, error) {
	return stubProbe{}, nil
}

func writeAuthUser(w http.ResponseWriter, id string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"user": map[string]any{
			"id":            id,
			"email":         id + "@example.test",
			"emailVerified": true,
		},
		"expiresIn": int64(3600),
	})
}

func newTestManager(t *testing.T, mux *http.ServeMux, mutate func(*Config)) *Manager {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := defaultConfig()
	cfg.API.BaseURL = srv.URL
	cfg.Guard.MinInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	mgr, err := New().
		WithConfig(cfg).
		WithSignalSource(stubSignals{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(mgr.Close)
	return mgr
}

func waitChecked(t *testing.T, m *Manager) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.AuthChecked() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("identity check did not complete")
}

func TestResolvePublicSkipsNetworkAndCache(t *testing.T) {
	var requests atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mgr := newTestManager(t, mux, nil)

	res, err := mgr.Resolve(context.Background(), "/about")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Class != routes.Public {
		t.Fatalf("expected public class, got %v", res.Class)
	}
	if res.RedirectTo != "" {
		t.Fatalf("public path must not redirect, got %q", res.RedirectTo)
	}
	if !mgr.AuthChecked() {
		t.Fatal("expected authChecked after public resolution")
	}
	if got := requests.Load(); got != 0 {
		t.Fatalf("expected no network traffic for a public path, got %d requests", got)
	}
}

func TestResolvePublicRendersAnonymousWhenSignedIn(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signin", func(w http.ResponseWriter, _ *http.Request) {
		writeAuthUser(w, "u10")
	})
	mgr := newTestManager(t, mux, nil)

	if _, err := mgr.SignIn(context.Background(), "u10@example.test", "pw", false); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	res, err := mgr.Resolve(context.Background(), "/about")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.User != nil {
		t.Fatalf("a public pass must render anonymously, got %+v", res.User)
	}
	if mgr.CurrentUser() == nil {
		t.Fatal("the identity snapshot must survive a public pass")
	}
}

func TestResolveProtectedUnauthorizedRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mgr := newTestManager(t, mux, nil)

	res, err := mgr.Resolve(context.Background(), "/users/dashboard")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Class != routes.Protected {
		t.Fatalf("expected protected class, got %v", res.Class)
	}
	if res.User != nil {
		t.Fatalf("expected anonymous resolution, got user %q", res.User.UserID)
	}
	want := "/auth/signin?redirect=%2Fusers%2Fdashboard"
	if res.RedirectTo != want {
		t.Fatalf("expected redirect %q, got %q", want, res.RedirectTo)
	}
	if !mgr.AuthChecked() {
		t.Fatal("expected authChecked after blocking resolution")
	}
}

func TestResolveProtectedAuthenticatedThenCacheHit(t *testing.T) {
	var meCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, _ *http.Request) {
		meCalls.Add(1)
		writeAuthUser(w, "u1")
	})
	mgr := newTestManager(t, mux, nil)

	first, err := mgr.Resolve(context.Background(), "/users/dashboard")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first.User == nil || first.User.UserID != "u1" {
		t.Fatalf("expected user u1, got %+v", first.User)
	}
	if first.FromCache {
		t.Fatal("first resolution must not come from cache")
	}

	second, err := mgr.Resolve(context.Background(), "/users/settings")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !second.FromCache {
		t.Fatal("expected second resolution from cache")
	}
	if second.User == nil || second.User.UserID != "u1" {
		t.Fatalf("expected cached user u1, got %+v", second.User)
	}
	if got := meCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one identity call, got %d", got)
	}
}

func TestResolveProtectedCachedUnauthorizedStillRedirects(t *testing.T) {
	var meCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, _ *http.Request) {
		meCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mgr := newTestManager(t, mux, nil)

	first, err := mgr.Resolve(context.Background(), "/users/dashboard")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first.RedirectTo != "/auth/signin?redirect=%2Fusers%2Fdashboard" {
		t.Fatalf("expected sign-in redirect, got %q", first.RedirectTo)
	}

	second, err := mgr.Resolve(context.Background(), "/users/settings")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !second.FromCache {
		t.Fatal("expected the cached rejection to be served")
	}
	if second.User != nil {
		t.Fatalf("cached rejection must stay anonymous, got %+v", second.User)
	}
	if second.RedirectTo != "/auth/signin?redirect=%2Fusers%2Fsettings" {
		t.Fatalf("cached rejection must still redirect, got %q", second.RedirectTo)
	}
	if got := meCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one identity call, got %d", got)
	}
}

func TestResolveProtectedTransportErrorRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	srv.Close()

	cfg := defaultConfig()
	cfg.API.BaseURL = srv.URL
	mgr, err := New().WithConfig(cfg).WithSignalSource(stubSignals{}).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer mgr.Close()

	res, err := mgr.Resolve(context.Background(), "/users/dashboard")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.RedirectTo == "" {
		t.Fatal("expected redirect when the backend is unreachable on a protected path")
	}
	if res.User != nil {
		t.Fatal("expected anonymous resolution on transport failure")
	}
}

func TestResolveBackgroundCheckUpgradesOnAuthPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, _ *http.Request) {
		writeAuthUser(w, "u2")
	})
	mgr := newTestManager(t, mux, nil)

	id, events := mgr.Subscribe()
	defer mgr.Unsubscribe(id)

	res, err := mgr.Resolve(context.Background(), "/auth/signin")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Class != routes.PublicWithBackgroundCheck {
		t.Fatalf("expected background-check class, got %v", res.Class)
	}
	if !res.Pending {
		t.Fatal("expected pending background check")
	}
	if res.RedirectTo != "" {
		t.Fatal("background-check resolution must not redirect directly")
	}

	select {
	case ev := <-events:
		if ev.Reason != EventBackgroundUpgrade {
			t.Fatalf("expected background upgrade event, got %q", ev.Reason)
		}
		if ev.User == nil || ev.User.UserID != "u2" {
			t.Fatalf("expected user u2 in event, got %+v", ev.User)
		}
		if ev.RedirectTo != "/users/dashboard" {
			t.Fatalf("expected landing redirect for signed-in visitor on auth page, got %q", ev.RedirectTo)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no background check event")
	}
	waitChecked(t, mgr)
}

func TestResolveBackgroundCheckNoRedirectOffAuthPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, _ *http.Request) {
		writeAuthUser(w, "u3")
	})
	mgr := newTestManager(t, mux, nil)

	id, events := mgr.Subscribe()
	defer mgr.Unsubscribe(id)

	if _, err := mgr.Resolve(context.Background(), "/courses/go-basics"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Reason != EventBackgroundUpgrade {
			t.Fatalf("expected background upgrade event, got %q", ev.Reason)
		}
		if ev.RedirectTo != "" {
			t.Fatalf("background upgrade off the auth pages must not redirect, got %q", ev.RedirectTo)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no background check event")
	}
}

func TestResolveBackgroundCheckTransportFailureKeepsState(t *testing.T) {
	var fail atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		writeAuthUser(w, "u4")
	})
	mgr := newTestManager(t, mux, nil)

	if _, err := mgr.Resolve(context.Background(), "/users/dashboard"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if mgr.CurrentUser() == nil {
		t.Fatal("expected signed-in state")
	}

	// Invalidate the cache so the background check actually fires.
	_ = mgr.store.Invalidate(context.Background())
	fail.Store(true)

	if _, err := mgr.Resolve(context.Background(), "/courses/go-basics"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	waitChecked(t, mgr)

	if mgr.CurrentUser() == nil {
		t.Fatal("transport failure during a background check must not clear identity")
	}
}

func TestResolvePublishesEventPerResolution(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mgr := newTestManager(t, mux, nil)

	id, events := mgr.Subscribe()
	defer mgr.Unsubscribe(id)

	next := func() Event {
		t.Helper()
		select {
		case ev := <-events:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("no resolution event")
			return Event{}
		}
	}

	if _, err := mgr.Resolve(context.Background(), "/about"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if ev := next(); ev.Reason != EventResolved || ev.User != nil {
		t.Fatalf("expected anonymous resolution event, got %q %+v", ev.Reason, ev.User)
	}

	// A first-ever 401 carries no state change, but subscribers still
	// hear that the check completed.
	if _, err := mgr.Resolve(context.Background(), "/users/dashboard"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if ev := next(); ev.Reason != EventResolved || ev.User != nil {
		t.Fatalf("expected anonymous resolution event, got %q %+v", ev.Reason, ev.User)
	}
}

func TestSignInSuccessAdoptsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signin", func(w http.ResponseWriter, _ *http.Request) {
		writeAuthUser(w, "u5")
	})
	mgr := newTestManager(t, mux, nil)

	result, err := mgr.SignIn(context.Background(), "u5@example.test", "hunter2hunter2", true)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if result.User == nil || result.User.UserID != "u5" {
		t.Fatalf("expected user u5, got %+v", result.User)
	}
	if result.TwoFactor != nil {
		t.Fatal("expected no two-factor challenge")
	}
	if current := mgr.CurrentUser(); current == nil || current.UserID != "u5" {
		t.Fatalf("expected adopted session, got %+v", current)
	}
}

func TestSignInInvalidCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signin", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mgr := newTestManager(t, mux, nil)

	_, err := mgr.SignIn(context.Background(), "u@example.test", "wrong", false)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if mgr.CurrentUser() != nil {
		t.Fatal("failed sign-in must not install a session")
	}
}

func TestSignInValidatesInput(t *testing.T) {
	mgr := newTestManager(t, http.NewServeMux(), nil)

	if _, err := mgr.SignIn(context.Background(), "  ", "pw", false); !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}
	if _, err := mgr.SignIn(context.Background(), "a@b.test", "", false); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
}

func TestSignInTwoFactorRequired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signin", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"requiresTwoFactor": true,
			"sessionId":         "chal-1",
			"methods":           []string{"totp", "email"},
		})
	})
	mux.HandleFunc("/api/auth/2fa/verify", func(w http.ResponseWriter, _ *http.Request) {
		writeAuthUser(w, "u6")
	})
	mgr := newTestManager(t, mux, nil)

	result, err := mgr.SignIn(context.Background(), "u6@example.test", "pw-pw-pw", false)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if result.TwoFactor == nil {
		t.Fatal("expected a two-factor challenge machine")
	}
	if result.User != nil {
		t.Fatal("challenge result must not carry a user")
	}

	machine := result.TwoFactor
	if err := machine.SelectMethod(context.Background(), twofactor.MethodAuthenticator); err != nil {
		t.Fatalf("SelectMethod failed: %v", err)
	}
	out, err := machine.Verify(context.Background(), "123456")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !out.OK {
		t.Fatal("expected accepted verification")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if current := mgr.CurrentUser(); current != nil && current.UserID == "u6" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("completed challenge did not install the session")
}

func TestSignOutClearsLocalStateDespiteServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signin", func(w http.ResponseWriter, _ *http.Request) {
		writeAuthUser(w, "u7")
	})
	mux.HandleFunc("/api/auth/signout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mgr := newTestManager(t, mux, nil)

	if _, err := mgr.SignIn(context.Background(), "u7@example.test", "pw-pw-pw", false); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	err := mgr.SignOut(context.Background())
	if err == nil {
		t.Fatal("expected the server error to surface")
	}
	if mgr.CurrentUser() != nil {
		t.Fatal("local state must clear even when the server call fails")
	}
}

func TestSignOutAllClearsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signin", func(w http.ResponseWriter, _ *http.Request) {
		writeAuthUser(w, "u8")
	})
	mux.HandleFunc("/api/auth/signout-all", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mgr := newTestManager(t, mux, nil)

	if _, err := mgr.SignIn(context.Background(), "u8@example.test", "pw-pw-pw", false); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if err := mgr.SignOutAll(context.Background()); err != nil {
		t.Fatalf("SignOutAll failed: %v", err)
	}
	if mgr.CurrentUser() != nil {
		t.Fatal("expected anonymous state after sign-out-all")
	}
}

func TestSetDeviceTrustRequiresSignIn(t *testing.T) {
	mgr := newTestManager(t, http.NewServeMux(), nil)

	if err := mgr.SetDeviceTrust(context.Background(), true); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}

func TestSetDeviceTrustUpdatesIdentity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signin", func(w http.ResponseWriter, _ *http.Request) {
		writeAuthUser(w, "u9")
	})
	mux.HandleFunc("/api/auth/device-trust", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mgr := newTestManager(t, mux, nil)

	if _, err := mgr.SignIn(context.Background(), "u9@example.test", "pw-pw-pw", false); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if err := mgr.SetDeviceTrust(context.Background(), true); err != nil {
		t.Fatalf("SetDeviceTrust failed: %v", err)
	}
	current := mgr.CurrentUser()
	if current == nil || !current.DeviceTrusted {
		t.Fatalf("expected trusted device on identity, got %+v", current)
	}
}

func TestOperationGuardThrottlesRapidCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mgr := newTestManager(t, mux, func(cfg *Config) {
		cfg.Guard.MinInterval = time.Second
	})

	if err := mgr.SignOut(context.Background()); err != nil {
		t.Fatalf("first SignOut failed: %v", err)
	}
	if err := mgr.SignOut(context.Background()); !errors.Is(err, ErrOperationThrottled) {
		t.Fatalf("expected ErrOperationThrottled, got %v", err)
	}
}

func TestOperationGuardRejectsConcurrentOperation(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signout", func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	})
	mgr := newTestManager(t, mux, nil)

	done := make(chan error, 1)
	go func() {
		done <- mgr.SignOut(context.Background())
	}()

	<-started
	if err := mgr.SignOut(context.Background()); !errors.Is(err, ErrOperationInProgress) {
		t.Fatalf("expected ErrOperationInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first SignOut failed: %v", err)
	}
}

func TestClosedManagerRejectsOperations(t *testing.T) {
	mgr := newTestManager(t, http.NewServeMux(), nil)
	mgr.Close()

	if _, err := mgr.Resolve(context.Background(), "/users/dashboard"); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("expected ErrManagerClosed, got %v", err)
	}
	if _, err := mgr.SignIn(context.Background(), "a@b.test", "pw", false); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("expected ErrManagerClosed, got %v", err)
	}
}

func TestRenewWithoutSessionReturnsNotSignedIn(t *testing.T) {
	mgr := newTestManager(t, http.NewServeMux(), nil)

	if err := mgr.Renew(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}

func TestBuildRequiresSignalSource(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.BaseURL = "https://api.example.test"

	if _, err := New().WithConfig(cfg).Build(); !errors.Is(err, ErrSignalSourceRequired) {
		t.Fatalf("expected ErrSignalSourceRequired, got %v", err)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	if _, err := New().WithSignalSource(stubSignals{}).Build(); err == nil {
		t.Fatal("expected error without a base URL")
	}
}
