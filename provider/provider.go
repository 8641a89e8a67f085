/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/herald/internal/cache"
	"github.com/blnkfinance/herald/internal/transport"
	"github.com/blnkfinance/herald/model"
)

const maxErrorBody = 4 << 10

// Executor sends a request with retries. It is satisfied by *transport.Transport.
type Executor interface {
	Execute(ctx context.Context, build transport.RequestBuilder, maxAttempts int) (*http.Response, error)
}

// Signer produces the OAuth Authorization header. It is satisfied by *oauth1.Signer.
type Signer interface {
	Sign(method, rawURL string, creds model.Credentials, params url.Values) (string, error)
}

// Config holds the endpoints and retry budget of a Client.
type Config struct {
	BaseURL        string
	UploadURL      string
	MaxAttempts    int
	UserIDCacheTTL time.Duration
}

// Client talks to the X API v2 family.
type Client struct {
	cfg    Config
	exec   Executor
	signer Signer
	cache  cache.Cache
}

// ProviderError is a non-2xx provider response.
type ProviderError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s returned %d: %s", e.Endpoint, e.Status, e.Body)
}

// CreatePostParams describes an original post, reply or quote.
type CreatePostParams struct {
	Text      string
	MediaIDs  []string
	InReplyTo string
	QuoteID   string
}

// NewClient builds a provider client. c may be nil, in which case the user id is looked up on every repost.
func NewClient(cfg Config, exec Executor, signer Signer, c cache.Cache) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.UploadURL = strings.TrimRight(cfg.UploadURL, "/")
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Client{cfg: cfg, exec: exec, signer: signer, cache: c}
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createTweetRequest struct {
	Text         string      `json:"text,omitempty"`
	Media        *tweetMedia `json:"media,omitempty"`
	Reply        *tweetReply `json:"reply,omitempty"`
	QuoteTweetID string      `json:"quote_tweet_id,omitempty"`
}

type createTweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type retweetRequest struct {
	TweetID string `json:"tweet_id"`
}

type retweetResponse struct {
	Data struct {
		Retweeted bool `json:"retweeted"`
	} `json:"data"`
}

type meResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type mediaUploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

// CreatePost publishes a post and returns its provider id.
func (c *Client) CreatePost(ctx context.Context, creds model.Credentials, params CreatePostParams) (string, error) {
	ctx, span := otel.Tracer("herald.provider").Start(ctx, "Create Post")
	defer span.End()

	body := createTweetRequest{Text: params.Text, QuoteTweetID: params.QuoteID}
	if len(params.MediaIDs) > 0 {
		body.Media = &tweetMedia{MediaIDs: params.MediaIDs}
	}
	if params.InReplyTo != "" {
		body.Reply = &tweetReply{InReplyToTweetID: params.InReplyTo}
	}

	var out createTweetResponse
	if err := c.doJSON(ctx, creds, http.MethodPost, c.cfg.BaseURL+"/2/tweets", body, &out); err != nil {
		span.RecordError(err)
		return "", err
	}
	if out.Data.ID == "" {
		return "", errors.New("provider response has no post id")
	}
	return out.Data.ID, nil
}

// Repost reposts targetID as the authenticated account and reports whether the provider confirmed it.
func (c *Client) Repost(ctx context.Context, creds model.Credentials, targetID string) (bool, error) {
	ctx, span := otel.Tracer("herald.provider").Start(ctx, "Repost")
	defer span.End()

	userID, err := c.UserID(ctx, creds)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("resolve user id: %w", err)
	}

	var out retweetResponse
	endpoint := fmt.Sprintf("%s/2/users/%s/retweets", c.cfg.BaseURL, url.PathEscape(userID))
	if err := c.doJSON(ctx, creds, http.MethodPost, endpoint, retweetRequest{TweetID: targetID}, &out); err != nil {
		span.RecordError(err)
		return false, err
	}
	return out.Data.Retweeted, nil
}

// UserID returns the provider id of the account behind creds, cached for UserIDCacheTTL.
func (c *Client) UserID(ctx context.Context, creds model.Credentials) (string, error) {
	load := func() (interface{}, error) {
		var out meResponse
		if err := c.doJSON(ctx, creds, http.MethodGet, c.cfg.BaseURL+"/2/users/me", nil, &out); err != nil {
			return nil, err
		}
		if out.Data.ID == "" {
			return nil, errors.New("provider response has no user id")
		}
		return out.Data.ID, nil
	}

	if c.cache == nil {
		id, err := load()
		if err != nil {
			return "", err
		}
		return id.(string), nil
	}

	var id string
	if err := c.cache.Once(ctx, userIDCacheKey(creds), &id, c.cfg.UserIDCacheTTL, load); err != nil {
		return "", err
	}
	return id, nil
}

func userIDCacheKey(creds model.Credentials) string {
	if creds.AccountKey != "" {
		return "herald:user-id:" + creds.AccountKey
	}
	return "herald:user-id:token:" + creds.AccessToken
}

// UploadMedia uploads data and returns the media id to attach to a post.
// The payload is sent as a base64 form field so it takes part in the signature.
func (c *Client) UploadMedia(ctx context.Context, creds model.Credentials, data []byte, mimeType string) (string, error) {
	ctx, span := otel.Tracer("herald.provider").Start(ctx, "Upload Media")
	defer span.End()

	form := url.Values{"media_data": {base64.StdEncoding.EncodeToString(data)}}
	if mimeType != "" {
		form.Set("media_type", mimeType)
	}
	endpoint := c.cfg.UploadURL + "/1.1/media/upload.json"
	encoded := form.Encode()

	build := func(ctx context.Context) (*http.Request, error) {
		auth, err := c.signer.Sign(http.MethodPost, endpoint, creds, form)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", auth)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}

	var out mediaUploadResponse
	if err := c.send(ctx, endpoint, build, &out); err != nil {
		span.RecordError(err)
		return "", err
	}
	if out.MediaIDString == "" {
		return "", errors.New("provider response has no media id")
	}
	return out.MediaIDString, nil
}

// doJSON signs and sends a request with an optional JSON body. JSON bodies are not
// part of the OAuth signature.
func (c *Client) doJSON(ctx context.Context, creds model.Credentials, method, endpoint string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	build := func(ctx context.Context) (*http.Request, error) {
		auth, err := c.signer.Sign(method, endpoint, creds, nil)
		if err != nil {
			return nil, err
		}
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", auth)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}

	return c.send(ctx, endpoint, build, out)
}

func (c *Client) send(ctx context.Context, endpoint string, build transport.RequestBuilder, out interface{}) error {
	resp, err := c.exec.Execute(ctx, build, c.cfg.MaxAttempts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		perr := &ProviderError{Endpoint: endpointPath(endpoint), Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		logrus.WithFields(logrus.Fields{
			"endpoint": perr.Endpoint,
			"status":   perr.Status,
		}).Warn("provider request rejected")
		return perr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

func endpointPath(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Path
}
