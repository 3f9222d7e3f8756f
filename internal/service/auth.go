package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/multierr"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
	"github.com/itsobito471-bot/thebottlestories/internal/repository"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

// ProfileAPI fetches the signed-in user's profile.
type ProfileAPI interface {
	Me(ctx context.Context) (*domain.User, error)
}

// Auth owns the auth-token and user keys of one device. The edge never
// verifies tokens; it only drops JWTs whose exp claim has passed.
type Auth struct {
	kv     repository.KV
	logger *slog.Logger
	now    func() time.Time
}

// NewAuth creates the auth bootstrap for one device.
func NewAuth(kv repository.KV, logger *slog.Logger) *Auth {
	return &Auth{kv: kv, logger: logger, now: time.Now}
}

// Token returns the stored session token, or "" when there is none or it
// has expired. An expired token is deleted.
func (a *Auth) Token(ctx context.Context) string {
	raw, err := a.kv.Get(ctx, repository.KeyAuthToken)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			a.logger.WarnContext(ctx, "read auth token failed", slog.String("error", err.Error()))
		}
		return ""
	}

	tok := strings.TrimSpace(string(raw))
	if tok == "" {
		return ""
	}
	if tokenExpired(tok, a.now()) {
		a.logger.InfoContext(ctx, "dropping expired session token")
		if err := a.SignOut(ctx); err != nil {
			a.logger.WarnContext(ctx, "clear expired token failed", slog.String("error", err.Error()))
		}
		return ""
	}
	return tok
}

// tokenExpired reports whether tok is a JWT whose exp lies at or before
// now. Opaque tokens and JWTs without exp never expire here.
func tokenExpired(tok string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}

// SignIn stores token and, when given, the display profile.
func (a *Auth) SignIn(ctx context.Context, token string, user *domain.User) error {
	if err := a.kv.Set(ctx, repository.KeyAuthToken, []byte(token)); err != nil {
		return fmt.Errorf("store auth token: %w", err)
	}
	if user == nil {
		return nil
	}
	if err := repository.SetJSON(ctx, a.kv, repository.KeyUser, user); err != nil {
		return fmt.Errorf("store user profile: %w", err)
	}
	return nil
}

// CaptureCallback handles a social-login redirect. When location carries a
// token query parameter the token (and the optional user payload) is stored
// and the token, user and error parameters are stripped from the returned
// location, also when storing the token fails. Other locations are returned
// unchanged.
func (a *Auth) CaptureCallback(ctx context.Context, location string) (string, bool, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "/", false, apperrors.InvalidInput("malformed location")
	}
	q := u.Query()
	token := q.Get("token")
	if token == "" {
		return location, false, nil
	}
	cleaned := stripCallback(u)

	var user *domain.User
	if raw := q.Get("user"); raw != "" {
		var decoded domain.User
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			a.logger.WarnContext(ctx, "ignoring malformed user payload in login callback", slog.String("error", err.Error()))
		} else {
			user = &decoded
		}
	}
	if err := a.SignIn(ctx, token, user); err != nil {
		return cleaned, false, err
	}
	return cleaned, true, nil
}

// StripCallback removes the login callback parameters from location. An
// unparseable location becomes "/".
func StripCallback(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return "/"
	}
	return stripCallback(u)
}

func stripCallback(u *url.URL) string {
	cp := *u
	q := cp.Query()
	q.Del("token")
	q.Del("user")
	q.Del("error")
	cp.RawQuery = q.Encode()
	return cp.String()
}

// User returns the cached profile, or nil.
func (a *Auth) User(ctx context.Context) (*domain.User, error) {
	var u domain.User
	found, err := repository.GetJSON(ctx, a.kv, repository.KeyUser, &u)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

// RefreshProfile fetches the profile from the API and caches it.
func (a *Auth) RefreshProfile(ctx context.Context, api ProfileAPI) (*domain.User, error) {
	if a.Token(ctx) == "" {
		return nil, apperrors.LoginRequired("please sign in")
	}
	u, err := api.Me(ctx)
	if err != nil {
		return nil, err
	}
	if err := repository.SetJSON(ctx, a.kv, repository.KeyUser, u); err != nil {
		a.logger.WarnContext(ctx, "cache user profile failed", slog.String("error", err.Error()))
	}
	return u, nil
}

// SignOut deletes the token and the cached profile.
func (a *Auth) SignOut(ctx context.Context) error {
	return multierr.Combine(
		a.kv.Delete(ctx, repository.KeyAuthToken),
		a.kv.Delete(ctx, repository.KeyUser),
	)
}
