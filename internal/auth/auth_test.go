package auth

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const botToken = "123456:TEST-TOKEN"

func signedInitData(t *testing.T, user string, authDate time.Time) string {
	t.Helper()
	v := url.Values{}
	v.Set("user", user)
	v.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	v.Set("query_id", "AAH")
	v.Set("hash", Sign(v, botToken))
	return v.Encode()
}

func newAuth(t *testing.T, now time.Time, dev bool) *Authenticator {
	t.Helper()
	a, err := New(Options{BotToken: botToken, JWTSecret: "s3cret", Dev: dev, Now: func() time.Time { return now }})
	require.NoError(t, err)
	return a
}

func TestVerifyInitData(t *testing.T) {
	now := time.Now()
	a := newAuth(t, now, false)

	id, err := a.VerifyInitData(signedInitData(t, `{"id":42,"first_name":"Ann","photo_url":"https://t.me/a.jpg"}`, now))
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "tg_42", NumericID: 42, Username: "Ann", PhotoURL: "https://t.me/a.jpg"}, id)

	id, err = a.VerifyInitData(signedInitData(t, `{"id":7,"username":"annie","first_name":"Ann"}`, now))
	require.NoError(t, err)
	assert.Equal(t, "annie", id.Username)

	id, err = a.VerifyInitData(signedInitData(t, `{"id":8}`, now))
	require.NoError(t, err)
	assert.Equal(t, "Player", id.Username)
}

func TestVerifyInitDataRejectsTampering(t *testing.T) {
	now := time.Now()
	a := newAuth(t, now, false)
	data := signedInitData(t, `{"id":42}`, now)
	v, err := url.ParseQuery(data)
	require.NoError(t, err)
	v.Set("user", `{"id":43}`)

	_, err = a.VerifyInitData(v.Encode())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = a.VerifyInitData("user=%7B%22id%22%3A1%7D")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifyInitDataExpired(t *testing.T) {
	now := time.Now()
	a := newAuth(t, now, false)
	_, err := a.VerifyInitData(signedInitData(t, `{"id":42}`, now.Add(-48*time.Hour)))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestDevModeSkipsSignature(t *testing.T) {
	a := newAuth(t, time.Now(), true)
	id, err := a.VerifyInitData("user=" + url.QueryEscape(`{"id":5,"username":"dev"}`))
	require.NoError(t, err)
	assert.Equal(t, "tg_5", id.ID)
}

func TestTokenRoundTrip(t *testing.T) {
	a := newAuth(t, time.Now(), false)
	in := Identity{ID: "tg_42", NumericID: 42, Username: "ann", PhotoURL: "p"}
	tok, exp, err := a.Issue(in)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	out, err := a.Verify("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	other, err := New(Options{JWTSecret: "other", Dev: true})
	require.NoError(t, err)
	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = a.Verify("")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestExpiredToken(t *testing.T) {
	a := newAuth(t, time.Now().Add(-48*time.Hour), false)
	tok, _, err := a.Issue(Identity{ID: "tg_1", Username: "x"})
	require.NoError(t, err)
	_, err = a.Verify(tok)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestNewRequiresSecrets(t *testing.T) {
	_, err := New(Options{BotToken: botToken})
	assert.Error(t, err)
	_, err = New(Options{JWTSecret: "x"})
	assert.Error(t, err)
}
