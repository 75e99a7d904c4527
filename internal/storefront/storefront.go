// Package storefront assembles the client components of one shopping
// session: catalog cache, cart, user session and admin credential.
package storefront

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"BookStore/internal/book"
	"BookStore/internal/cart"
	"BookStore/internal/catalogcache"
	"BookStore/internal/catalogclient"
	"BookStore/internal/search"
	"BookStore/internal/session"
)

type Config struct {
	CatalogURL  string
	CacheMaxAge time.Duration
	// AdminTTL applies to admin tokens without an exp claim.
	AdminTTL    time.Duration
	SearchLimit int
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.CatalogURL, validation.Required, is.URL),
		validation.Field(&c.CacheMaxAge, validation.Min(time.Duration(0))),
		validation.Field(&c.AdminTTL, validation.Min(time.Duration(0))),
	)
}

// Deps are optional collaborators. Nil fields get in-memory or no-op
// defaults; without Identity there is no user session.
type Deps struct {
	Log           *zap.Logger
	Registry      prometheus.Registerer
	HTTPClient    *http.Client
	Identity      session.IdentityService
	Credentials   session.CredentialStore
	CartNotifier  cart.Notifier
	OnAdminExpire func()
}

type Storefront struct {
	Cart        *cart.Store
	Catalog     *catalogcache.Catalog
	Session     *session.Provider
	Admin       *session.AdminAuth
	Credentials session.CredentialStore

	cfg Config
	log *zap.Logger

	mu          sync.Mutex
	started     bool
	unsubscribe func()
}

func New(cfg Config, deps Deps) (*Storefront, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "storefront config")
	}

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	creds := deps.Credentials
	if creds == nil {
		creds = session.NewMemoryCredentials()
	}

	clientOpts := []catalogclient.Option{
		catalogclient.WithTokenSource(session.CredentialTokenSource{Store: creds, Log: log}),
		catalogclient.WithLogger(log.Named("catalog")),
	}
	if deps.HTTPClient != nil {
		clientOpts = append(clientOpts, catalogclient.WithHTTPClient(deps.HTTPClient))
	}
	client := catalogclient.New(cfg.CatalogURL, clientOpts...)

	cache := catalogcache.New(
		catalogcache.WithMaxAge(cfg.CacheMaxAge),
		catalogcache.WithMetrics(catalogcache.NewMetrics(deps.Registry)),
		catalogcache.WithLogger(log.Named("cache")),
	)

	adminOpts := []session.AdminOption{session.WithAdminLogger(log.Named("admin"))}
	if cfg.AdminTTL > 0 {
		adminOpts = append(adminOpts, session.WithFallbackTTL(cfg.AdminTTL))
	}
	if deps.OnAdminExpire != nil {
		adminOpts = append(adminOpts, session.WithOnExpire(deps.OnAdminExpire))
	}

	s := &Storefront{
		Cart:        cart.New(deps.CartNotifier),
		Catalog:     catalogcache.NewCatalog(client, cache, log.Named("catalog")),
		Admin:       session.NewAdminAuth(client, creds, adminOpts...),
		Credentials: creds,
		cfg:         cfg,
		log:         log,
	}
	if deps.Identity != nil {
		s.Session = session.NewProvider(deps.Identity, log.Named("session"))
	}
	return s, nil
}

// Start begins tracking the user session. Signing out drops the stored
// bearer credential.
func (s *Storefront) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.Session == nil {
		s.started = true
		return
	}
	s.started = true

	var prev atomic.Int64
	s.unsubscribe = s.Session.Subscribe(func(sess session.Session) {
		was := session.State(prev.Swap(int64(sess.State)))
		if was == session.Authenticated && sess.State == session.Anonymous {
			if err := s.Admin.Logout(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("drop credential on sign-out", zap.Error(err))
			}
		}
	})
	s.Session.Start()
}

// Close stops timers and subscriptions and clears the stored credential.
func (s *Storefront) Close() error {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if s.Session != nil {
		s.Session.Close()
	}
	s.Admin.Close()
	return s.Credentials.Clear(context.Background())
}

// Search runs the navigation search over the cached catalog.
func (s *Storefront) Search(ctx context.Context, query string) ([]book.Book, error) {
	books, err := s.Catalog.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return search.Books(books, query, s.cfg.SearchLimit), nil
}
