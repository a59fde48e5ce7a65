// Package auth turns Telegram Mini App initData into a player identity and
// issues the session token presented on every socket connection.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrBadSignature    = errors.New("initData signature mismatch")
	ErrExpired         = errors.New("initData expired")
)

const (
	issuer            = "dame-server"
	defaultDisplay    = "Player"
	DefaultInitMaxAge = 24 * time.Hour
)

// Identity is the decoded player behind a connection.
type Identity struct {
	ID        string `json:"id"`
	NumericID int64  `json:"numericId"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photoUrl,omitempty"`
}

type Options struct {
	BotToken  string
	JWTSecret string
	TokenTTL  time.Duration
	// InitMaxAge bounds auth_date. Zero uses DefaultInitMaxAge.
	InitMaxAge time.Duration
	// Dev accepts initData without a valid hash.
	Dev bool
	Now func() time.Time
}

type Authenticator struct {
	opts Options
}

func New(opts Options) (*Authenticator, error) {
	if strings.TrimSpace(opts.JWTSecret) == "" {
		return nil, errors.New("jwt secret required")
	}
	if !opts.Dev && strings.TrimSpace(opts.BotToken) == "" {
		return nil, errors.New("bot token required unless dev auth is enabled")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.InitMaxAge <= 0 {
		opts.InitMaxAge = DefaultInitMaxAge
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Authenticator{opts: opts}, nil
}

type telegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	PhotoURL  string `json:"photo_url"`
}

// VerifyInitData checks the WebApp hash and decodes the embedded user.
func (a *Authenticator) VerifyInitData(initData string) (Identity, error) {
	values, err := url.ParseQuery(strings.TrimSpace(initData))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !a.opts.Dev {
		if err := checkSignature(values, a.opts.BotToken); err != nil {
			return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		if ts, err := strconv.ParseInt(values.Get("auth_date"), 10, 64); err == nil {
			if a.opts.Now().Sub(time.Unix(ts, 0)) > a.opts.InitMaxAge {
				return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrExpired)
			}
		}
	}
	raw := values.Get("user")
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: missing user", ErrUnauthenticated)
	}
	var u telegramUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u.ID == 0 {
		return Identity{}, fmt.Errorf("%w: bad user payload", ErrUnauthenticated)
	}
	name := strings.TrimSpace(u.Username)
	if name == "" {
		name = strings.TrimSpace(u.FirstName)
	}
	if name == "" {
		name = defaultDisplay
	}
	return Identity{
		ID:        "tg_" + strconv.FormatInt(u.ID, 10),
		NumericID: u.ID,
		Username:  name,
		PhotoURL:  u.PhotoURL,
	}, nil
}

// DataCheckString joins every field except hash as sorted key=value lines.
func DataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	return strings.Join(lines, "\n")
}

// Sign computes the initData hash for botToken.
func Sign(values url.Values, botToken string) string {
	secret := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	return hex.EncodeToString(hmacSHA256(secret, []byte(DataCheckString(values))))
}

func checkSignature(values url.Values, botToken string) error {
	got, err := hex.DecodeString(values.Get("hash"))
	if err != nil || len(got) == 0 {
		return ErrBadSignature
	}
	want, _ := hex.DecodeString(Sign(values, botToken))
	if !hmac.Equal(got, want) {
		return ErrBadSignature
	}
	return nil
}

func hmacSHA256(key, msg []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(msg)
	return m.Sum(nil)
}

// Issue signs a session token for id.
func (a *Authenticator) Issue(id Identity) (string, time.Time, error) {
	now := a.opts.Now()
	exp := now.Add(a.opts.TokenTTL)
	claims := jwt.MapClaims{
		"iss":   issuer,
		"sub":   id.ID,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"tid":   id.NumericID,
		"name":  id.Username,
		"photo": id.PhotoURL,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.opts.JWTSecret))
	return signed, exp, err
}

// Verify decodes a session token. Every failure maps to ErrUnauthenticated.
func (a *Authenticator) Verify(tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenString), "Bearer "))
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(a.opts.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !claims.VerifyIssuer(issuer, true) {
		return Identity{}, fmt.Errorf("%w: bad claims", ErrUnauthenticated)
	}
	sub, _ := claims["sub"].(string)
	if !strings.HasPrefix(sub, "tg_") {
		return Identity{}, fmt.Errorf("%w: bad subject", ErrUnauthenticated)
	}
	id := Identity{ID: sub}
	id.Username, _ = claims["name"].(string)
	id.PhotoURL, _ = claims["photo"].(string)
	if tid, ok := claims["tid"].(float64); ok {
		id.NumericID = int64(tid)
	}
	if id.Username == "" {
		id.Username = defaultDisplay
	}
	return id, nil
}
