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

// Package oauth1 produces OAuth 1.0a HMAC-SHA1 Authorization headers.
package oauth1

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blnkfinance/herald/model"
)

const (
	signatureMethod = "HMAC-SHA1"
	version         = "1.0"
)

// ErrInvalidCredentials is returned when a required secret is missing.
var ErrInvalidCredentials = errors.New("oauth1: incomplete credentials")

// Signer signs requests with OAuth 1.0a HMAC-SHA1. NonceFunc and Clock are replaceable for tests.
type Signer struct {
	NonceFunc func() string
	Clock     func() time.Time
}

// NewSigner returns a Signer with random nonces and the wall clock.
func NewSigner() *Signer {
	return &Signer{
		NonceFunc: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		Clock:     time.Now,
	}
}

type pair struct {
	key, value string
}

// Sign returns the Authorization header value for a request.
// Query parameters in rawURL and the form body params take part in the signature;
// only the oauth_* parameters are emitted in the header.
func (s *Signer) Sign(method, rawURL string, creds model.Credentials, params url.Values) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("oauth1: parse url: %w", err)
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     creds.APIKey,
		"oauth_nonce":            s.NonceFunc(),
		"oauth_signature_method": signatureMethod,
		"oauth_timestamp":        strconv.FormatInt(s.Clock().Unix(), 10),
		"oauth_token":            creds.AccessToken,
		"oauth_version":          version,
	}

	var all []pair
	for k, v := range oauthParams {
		all = append(all, pair{PercentEncode(k), PercentEncode(v)})
	}
	for _, values := range []url.Values{u.Query(), params} {
		for k, vs := range values {
			for _, v := range vs {
				all = append(all, pair{PercentEncode(k), PercentEncode(v)})
			}
		}
	}

	base := strings.ToUpper(method) + "&" + PercentEncode(baseURL(u)) + "&" + PercentEncode(normalize(all))
	key := PercentEncode(creds.APIKeySecret) + "&" + PercentEncode(creds.AccessTokenSecret)

	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	oauthParams["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	header := make([]pair, 0, len(oauthParams))
	for k, v := range oauthParams {
		header = append(header, pair{PercentEncode(k), PercentEncode(v)})
	}
	sortPairs(header)

	parts := make([]string, len(header))
	for i, p := range header {
		parts[i] = fmt.Sprintf(`%s="%s"`, p.key, p.value)
	}
	return "OAuth " + strings.Join(parts, ", "), nil
}

func sortPairs(pairs []pair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key == pairs[j].key {
			return pairs[i].value < pairs[j].value
		}
		return pairs[i].key < pairs[j].key
	})
}

func normalize(pairs []pair) string {
	sortPairs(pairs)
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.key + "=" + p.value
	}
	return strings.Join(parts, "&")
}

// baseURL drops the query, the fragment and any default port.
func baseURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if port := u.Port(); (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		host = strings.ToLower(u.Hostname())
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// PercentEncode applies RFC 3986 encoding: everything except ALPHA, DIGIT and -._~ is escaped.
func PercentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}
