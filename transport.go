package flock

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	restEndpoint    = "https://discord.com/api/v%d/"
	gatewayEndpoint = "wss://gateway.discord.gg/?v=%d&encoding=json"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// A Response is the outcome of one REST call: status, headers, and the fully
// read body.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Blocked is set when the platform answered with a verification wall,
	// meaning the account behind the token is locked out.
	Blocked bool
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Transport issues authenticated REST requests for all accounts of a client.
// It applies the rate-limit policy every caller relies on: a 429 answer is
// held for Retry-After plus an additional cooldown before being returned,
// and every other answer is followed by a small fixed latency so requests
// never burst.
type Transport struct {
	client   *http.Client
	base     string
	latency  time.Duration
	cooldown time.Duration
	log      *zap.Logger
}

func newTransport(client *http.Client, base string, latency, cooldown time.Duration, log *zap.Logger) *Transport {
	return &Transport{
		client:   client,
		base:     base,
		latency:  latency,
		cooldown: cooldown,
		log:      log,
	}
}

// Do sends one authenticated request. path is relative to the versioned REST
// base. A non-nil body is marshalled as JSON. The returned error covers
// transport failures only; HTTP-level failures are reported through the
// Response status.
func (t *Transport) Do(ctx context.Context, method, path, token string, body interface{}) (*Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "flock: marshalling request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.base+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "flock: building request")
	}

	req.Header.Set("Authorization", token)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "flock: %s %s", method, path)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "flock: reading response body")
	}

	out := &Response{Status: res.StatusCode, Header: res.Header, Body: raw}

	if msg := json.Get(raw, "message").ToString(); strings.Contains(msg, "You need to verify") {
		out.Blocked = true
		t.log.Error("account appears to be locked behind verification",
			zap.String("path", path), zap.String("token", truncateToken(token)))
	}

	if retry := res.Header.Get("Retry-After"); retry != "" {
		seconds, _ := strconv.ParseFloat(retry, 64)
		wait := time.Duration(seconds*float64(time.Second)) + t.cooldown
		t.log.Warn("rate limit reached, holding before returning",
			zap.Duration("wait", wait), zap.String("path", path))
		if err := sleepCtx(ctx, wait); err != nil {
			return out, err
		}
		return out, nil
	}

	if err := sleepCtx(ctx, t.latency); err != nil {
		return out, err
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// truncateToken shortens a credential for log output. Tokens are secrets and
// are never logged in full.
func truncateToken(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
