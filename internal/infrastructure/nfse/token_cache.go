package nfse

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/nfse-emissor/internal/domain"
)

// ExpirySkew margen restado a la expiración informada por el servidor.
const ExpirySkew = 300 * time.Second

// refreshTimeout límite propio del intercambio compartido; no depende del llamador.
const refreshTimeout = 30 * time.Second

// TokenCacheConfig credenciales OAuth2 (client credentials) del agregador.
type TokenCacheConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// DefaultTTL vigencia asumida cuando la respuesta no trae expires_in.
	DefaultTTL time.Duration
	HTTPClient *http.Client
	// Now reloj inyectable (tests). nil ⇒ time.Now.
	Now func() time.Time
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// TokenCache mantiene un único token de acceso. Hit ⇒ cero llamadas de red;
// miss ⇒ un solo intercambio compartido por todos los llamadores concurrentes.
type TokenCache struct {
	cfg   clientcredentials.Config
	ttl   time.Duration
	http  *http.Client
	now   func() time.Time
	group singleflight.Group

	mu   sync.Mutex
	slot *cachedToken
}

// NewTokenCache crea el cache. Las credenciales se validan en cada Token para que un
// prestador sin configuración falle con AuthError y no al arrancar.
func NewTokenCache(c TokenCacheConfig) *TokenCache {
	ttl := c.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenCache{
		cfg: clientcredentials.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			TokenURL:     c.TokenURL,
			Scopes:       c.Scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		ttl:  ttl,
		http: hc,
		now:  now,
	}
}

// Token devuelve el token vigente o realiza el intercambio.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" || c.cfg.TokenURL == "" {
		return "", &domain.AuthError{Op: "TokenCache.Token", Msg: "client_id, client_secret o token_url ausentes", Err: domain.ErrMissingCredentials}
	}

	// El intercambio corre desacoplado del ctx del primer llamador: si ese request se
	// cancela, los demás que esperan el mismo vuelo siguen recibiendo el token.
	ch := c.group.DoChan("token", func() (interface{}, error) {
		// Otro llamador pudo haber renovado mientras esperábamos el vuelo.
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.refresh(rctx)
	})
	select {
	case <-ctx.Done():
		return "", &domain.AuthError{Op: "TokenCache.Token", Msg: "cancelado esperando el token", Err: ctx.Err()}
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

// Invalidate descarta el token actual (ej: el agregador respondió 401).
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.slot = nil
	c.mu.Unlock()
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot != nil && c.now().Before(c.slot.expiresAt) {
		return c.slot.accessToken, true
	}
	return "", false
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	const op = "TokenCache.refresh"
	issuedAt := c.now()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.cfg.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return "", &domain.AuthError{Op: op, Msg: "intercambio rechazado: " + re.Response.Status, Err: err}
		}
		return "", &domain.AuthError{Op: op, Msg: "intercambio OAuth falló", Err: err}
	}
	if tok.AccessToken == "" {
		return "", &domain.AuthError{Op: op, Msg: "respuesta sin access_token"}
	}

	// oauth2 calcula Expiry con el reloj real; se traslada como duración al reloj del cache.
	ttl := c.ttl
	if !tok.Expiry.IsZero() {
		ttl = time.Until(tok.Expiry)
	}
	c.mu.Lock()
	c.slot = &cachedToken{accessToken: tok.AccessToken, expiresAt: issuedAt.Add(ttl - ExpirySkew)}
	c.mu.Unlock()
	return tok.AccessToken, nil
}
