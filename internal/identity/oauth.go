package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
)

var ErrInvalidToken = errors.New("identity: invalid or expired token")

// OAuthProvider resolves bearer tokens against an OAuth2/OIDC userinfo
// endpoint. Resolved identities are cached per token.
type OAuthProvider struct {
	userInfoURL  string
	entitledPlan string
	httpClient   *http.Client
	cache        *cache.Cache
	logger       *slog.Logger
}

func NewOAuthProvider(userInfoURL, entitledPlan string, ttl time.Duration, logger *slog.Logger) *OAuthProvider {
	return &OAuthProvider{
		userInfoURL:  userInfoURL,
		entitledPlan: entitledPlan,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		cache:        cache.New(ttl, 2*ttl),
		logger:       logger,
	}
}

type userInfo struct {
	Sub          string   `json:"sub"`
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	Picture      string   `json:"picture"`
	Plan         string   `json:"plan"`
	Subscription string   `json:"subscription"`
	Plans        []string `json:"plans"`
	Entitled     bool     `json:"entitled"`
}

func (p *OAuthProvider) Identify(r *http.Request) (Caller, error) {
	c := Caller{Address: ClientAddress(r)}
	token := bearerToken(r)
	if token == "" || p.userInfoURL == "" {
		return c, nil
	}
	key := tokenKey(token)
	if v, ok := p.cache.Get(key); ok {
		return p.caller(v.(userInfo), c.Address), nil
	}
	info, err := p.fetch(r.Context(), token)
	if err != nil {
		return c, err
	}
	p.cache.SetDefault(key, *info)
	return p.caller(*info, c.Address), nil
}

func (p *OAuthProvider) caller(u userInfo, addr string) Caller {
	id := u.Sub
	if id == "" {
		id = u.ID
	}
	return Caller{
		ID:       id,
		Email:    strings.TrimSpace(u.Email),
		Name:     strings.TrimSpace(u.Name),
		Picture:  u.Picture,
		Address:  addr,
		Entitled: u.Entitled || p.hasPlan(u),
	}
}

func (p *OAuthProvider) hasPlan(u userInfo) bool {
	if p.entitledPlan == "" {
		return false
	}
	if strings.EqualFold(u.Plan, p.entitledPlan) || strings.EqualFold(u.Subscription, p.entitledPlan) {
		return true
	}
	for _, plan := range u.Plans {
		if strings.EqualFold(plan, p.entitledPlan) {
			return true
		}
	}
	return false
}

func (p *OAuthProvider) fetch(ctx context.Context, token string) (*userInfo, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidToken
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}
	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Sub == "" && info.ID == "" {
		return nil, fmt.Errorf("userinfo response has no subject")
	}
	p.logger.Debug("resolved caller", "subject", info.Sub, "email", info.Email)
	return &info, nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
