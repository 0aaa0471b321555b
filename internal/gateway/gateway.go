// Package gateway owns the session credential and routes usage requests to
// the vendor API, deduplicating identical in-flight calls and reacting to
// authentication failures by invalidating the credential.
package gateway

import (
	"context"
	"log"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/janekbaraniewski/usagewatch/internal/core"
	"github.com/janekbaraniewski/usagewatch/internal/normalize"
	"github.com/janekbaraniewski/usagewatch/internal/retry"
	"github.com/janekbaraniewski/usagewatch/internal/transport"
)

// UsageEndpoint is the consumption endpoint, identical on the tenant-scoped
// and the shared base URL.
const UsageEndpoint = "/api/usage"

// CredentialStore persists the single opaque credential. Implementations are
// expected to be slow (disk, keychain), so the gateway calls Save off the hot
// path.
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, credential string) error
	Delete(ctx context.Context) error
}

// Config carries the endpoints the gateway talks to. TenantBaseURL may be
// empty, in which case only the shared default base is used.
type Config struct {
	TenantBaseURL  string
	DefaultBaseURL string
}

type Gateway struct {
	mu          sync.RWMutex
	cred        string
	tenantBase  string
	defaultBase string

	client *transport.Client
	exec   *retry.Executor
	flight singleflight.Group
	store  CredentialStore

	authObservers []func(authenticated bool)
}

func New(cfg Config, client *transport.Client, exec *retry.Executor, store CredentialStore) *Gateway {
	return &Gateway{
		tenantBase:  cfg.TenantBaseURL,
		defaultBase: cfg.DefaultBaseURL,
		client:      client,
		exec:        exec,
		store:       store,
	}
}

// OnAuthChange registers an observer fired synchronously after every
// credential mutation, before any persistence side effect begins.
func (g *Gateway) OnAuthChange(fn func(authenticated bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authObservers = append(g.authObservers, fn)
}

func (g *Gateway) notifyAuthChange(authenticated bool) {
	g.mu.RLock()
	observers := make([]func(bool), len(g.authObservers))
	copy(observers, g.authObservers)
	g.mu.RUnlock()
	for _, fn := range observers {
		fn(authenticated)
	}
}

func (g *Gateway) Authenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cred != ""
}

// LoadPersisted restores the credential from the store, typically at startup.
// A missing or invalid stored credential leaves the gateway unauthenticated.
func (g *Gateway) LoadPersisted(ctx context.Context) {
	cred, err := g.store.Load(ctx)
	if err != nil {
		log.Printf("[gateway] loading persisted credential: %v", err)
		return
	}
	if cred == "" {
		return
	}
	// Stored values may predate canonicalization (legacy plaintext key
	// migrated as-is), so normalize again on the way in.
	normalized, err := NormalizeCredential(cred)
	if err != nil {
		log.Printf("[gateway] persisted credential invalid, ignoring: %v", err)
		return
	}
	g.mu.Lock()
	g.cred = normalized
	g.mu.Unlock()
	g.notifyAuthChange(true)
}

// SetCredential normalizes and validates user input, updates the in-memory
// credential, and persists it asynchronously. Persistence failure is logged
// but does not undo the in-memory set.
func (g *Gateway) SetCredential(input string) error {
	cred, err := NormalizeCredential(input)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.cred = cred
	g.mu.Unlock()
	g.notifyAuthChange(true)

	go func() {
		if err := g.store.Save(context.Background(), cred); err != nil {
			log.Printf("[gateway] persisting credential: %v", err)
		}
	}()
	return nil
}

// ClearCredential drops the credential from memory and the store. Safe to
// call repeatedly; only the first call after authentication does work.
func (g *Gateway) ClearCredential(ctx context.Context) {
	g.mu.Lock()
	had := g.cred != ""
	g.cred = ""
	g.mu.Unlock()
	if !had {
		return
	}
	g.notifyAuthChange(false)
	if err := g.store.Delete(ctx); err != nil {
		log.Printf("[gateway] deleting persisted credential: %v", err)
	}
}

func (g *Gateway) credential() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cred
}

// FetchUsage retrieves the raw usage envelope. The tenant-scoped base URL is
// tried first; any failure other than an authentication one falls back to the
// shared default base with the same credential.
func (g *Gateway) FetchUsage(ctx context.Context) (*transport.Envelope, error) {
	if !g.Authenticated() {
		return nil, core.NewError(core.KindAuthentication, "not signed in")
	}

	primary := g.tenantBase
	if primary == "" {
		primary = g.defaultBase
	}

	env, err := g.fetchFrom(ctx, primary)
	if err == nil && env.Success {
		return env, nil
	}
	if core.IsAuthentication(err) {
		return nil, err
	}
	if primary == g.defaultBase {
		return env, err
	}

	log.Printf("[gateway] tenant endpoint failed, falling back to default base URL")
	return g.fetchFrom(ctx, g.defaultBase)
}

// fetchFrom issues one single-flighted, retried GET against base. Concurrent
// callers with the same (base, method, endpoint) share one round-trip; the
// in-flight entry is dropped the moment the call settles.
func (g *Gateway) fetchFrom(ctx context.Context, base string) (*transport.Envelope, error) {
	key := base + " " + http.MethodGet + " " + UsageEndpoint

	v, err, _ := g.flight.Do(key, func() (any, error) {
		return g.exec.DoEnvelope(ctx, "usage fetch", func(ctx context.Context) (*transport.Envelope, error) {
			return g.client.Get(ctx, base+UsageEndpoint, transport.RequestOptions{
				Headers: map[string]string{"Cookie": g.credential()},
			})
		})
	})
	if err != nil {
		return nil, err
	}

	env := v.(*transport.Envelope)
	if env.Status == http.StatusUnauthorized {
		log.Printf("[gateway] received 401, invalidating credential")
		g.ClearCredential(ctx)
		return nil, &core.Error{
			Kind:   core.KindAuthentication,
			Status: http.StatusUnauthorized,
			Msg:    "session expired, sign in again",
		}
	}
	return env, nil
}

// ParseUsage converts an envelope into the canonical record. Malformed
// payloads yield nil rather than an error; metering is advisory and a bad
// payload must not break the caller.
func (g *Gateway) ParseUsage(env *transport.Envelope) *core.UsageRecord {
	if env == nil {
		return nil
	}
	return normalize.Record(env.Success, env.Data)
}

// UsageRecord fetches and parses in one step. A nil record with nil error
// means the fetch worked but carried no usable data.
func (g *Gateway) UsageRecord(ctx context.Context) (*core.UsageRecord, error) {
	env, err := g.FetchUsage(ctx)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &core.Error{Kind: core.KindAPI, Status: env.Status, Msg: env.ErrMessage}
	}
	return g.ParseUsage(env), nil
}
