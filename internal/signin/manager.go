// Package signin hosts the interactive sign-in flow around the gateway. The
// UI that prompts, watches the clipboard, or opens a browser lives outside;
// this package provides the entry points and the advisory busy guard.
package signin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all"

	"github.com/janekbaraniewski/usagewatch/internal/gateway"
)

// ErrBusy is returned when a sign-in sequence is already running. The flag is
// deliberately reject-if-busy with no queueing: the second caller is told to
// wait instead of being silently enqueued.
var ErrBusy = errors.New("sign-in already in progress")

// browserPollInterval spaces out browser cookie-store scans while waiting for
// the user to finish signing in.
const browserPollInterval = 2 * time.Second

type Manager struct {
	mu   sync.Mutex
	busy bool

	gw           *gateway.Gateway
	cookieDomain string
	watchTimeout time.Duration
}

func New(gw *gateway.Gateway, cookieDomain string, watchTimeout time.Duration) *Manager {
	return &Manager{gw: gw, cookieDomain: cookieDomain, watchTimeout: watchTimeout}
}

func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return ErrBusy
	}
	m.busy = true
	return nil
}

func (m *Manager) end() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

// SignInWithToken consumes pasted input (bare token, Cookie header, or curl
// snippet) and hands it to the gateway.
func (m *Manager) SignInWithToken(input string) error {
	if err := m.begin(); err != nil {
		return err
	}
	defer m.end()

	return m.gw.SetCredential(input)
}

// SignInFromBrowser scans installed browsers' cookie stores for the vendor
// session cookie, polling until one appears or the configured watch timeout
// elapses. The user can sign in on the vendor site while this waits.
func (m *Manager) SignInFromBrowser(ctx context.Context) error {
	if err := m.begin(); err != nil {
		return err
	}
	defer m.end()

	watchCtx, cancel := context.WithTimeout(ctx, m.watchTimeout)
	defer cancel()

	for {
		if token, ok := m.findBrowserCookie(watchCtx); ok {
			return m.gw.SetCredential(token)
		}
		select {
		case <-watchCtx.Done():
			return fmt.Errorf("no %s cookie found in any browser for %s: %w",
				gateway.SessionCookieName, m.cookieDomain, watchCtx.Err())
		case <-time.After(browserPollInterval):
		}
	}
}

func (m *Manager) findBrowserCookie(ctx context.Context) (string, bool) {
	cookies, err := kooky.ReadCookies(ctx,
		kooky.Valid,
		kooky.DomainHasSuffix(m.cookieDomain),
		kooky.Name(gateway.SessionCookieName),
	)
	if err != nil {
		log.Printf("[signin] reading browser cookies: %v", err)
		return "", false
	}
	for _, c := range cookies {
		if c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

// SignOut clears the credential; unlike sign-in it is never rejected for
// being busy.
func (m *Manager) SignOut(ctx context.Context) {
	m.gw.ClearCredential(ctx)
}
