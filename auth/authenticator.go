// Package auth retrieves session tokens from the lakehouse control plane
// and builds the authenticated headers the websocket handshake needs. The
// execution bridge consumes only the resulting headers, never the token
// flow itself.
package auth

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Environment kinds, detected from the instance identifier.
const (
	envCPD  = "CPD"
	envSaaS = "SAAS"

	cpdAuthPath  = "/icp4d-api/v1/authorize"
	saasAuthPath = "/lakehouse/api/v2/auth/authenticate"

	cpdInstanceHeader  = "LhInstanceId"
	saasInstanceHeader = "AuthInstanceId"
)

const tokenRequestTimeout = 30 * time.Second

// Authenticator supplies handshake headers for a new connection. Implemented
// by the token flow below; tests substitute static headers.
type Authenticator interface {
	Headers(ctx context.Context) (http.Header, error)
}

// Static is an Authenticator that returns fixed headers.
type Static http.Header

// Headers implements Authenticator.
func (s Static) Headers(context.Context) (http.Header, error) {
	return http.Header(s), nil
}

// Credentials identify the caller to the control plane.
type Credentials struct {
	// Host is the control-plane base URL, e.g. https://example.com.
	Host string

	// Instance is the lakehouse instance identifier. A CRN marks a SaaS
	// deployment; anything else is on-prem (CPD).
	Instance string

	User   string
	APIKey string

	// InsecureSkipVerify disables TLS verification for the token request.
	InsecureSkipVerify bool
}

type environment struct {
	kind           string
	authPath       string
	instanceHeader string
}

// TokenAuthenticator exchanges credentials for a bearer token and builds
// the Authorization and instance headers per connection attempt.
type TokenAuthenticator struct {
	creds  Credentials
	client *http.Client
}

// NewTokenAuthenticator builds a token authenticator for the credentials.
func NewTokenAuthenticator(creds Credentials) *TokenAuthenticator {
	return &TokenAuthenticator{
		creds: creds,
		client: &http.Client{
			Timeout: tokenRequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: creds.InsecureSkipVerify},
			},
		},
	}
}

// Headers implements Authenticator.
func (a *TokenAuthenticator) Headers(ctx context.Context) (http.Header, error) {
	env := a.environment()
	token, err := a.token(ctx, env)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	headers.Set(env.instanceHeader, a.creds.Instance)
	return headers, nil
}

func (a *TokenAuthenticator) environment() environment {
	if strings.Contains(a.creds.Instance, "crn") {
		return environment{kind: envSaaS, authPath: saasAuthPath, instanceHeader: saasInstanceHeader}
	}
	return environment{kind: envCPD, authPath: cpdAuthPath, instanceHeader: cpdInstanceHeader}
}

func (a *TokenAuthenticator) token(ctx context.Context, env environment) (string, error) {
	var body map[string]string
	var tokenField string

	switch env.kind {
	case envSaaS:
		username := "ibmlhapikey"
		if a.creds.User != "" {
			username = "ibmlhapikey_" + a.creds.User
		}
		body = map[string]string{
			"username":      username,
			"password":      a.creds.APIKey,
			"instance_name": "",
			"instance_id":   a.creds.Instance,
		}
		tokenField = "accessToken"
	default:
		body = map[string]string{
			"username": a.creds.User,
			"api_key":  a.creds.APIKey,
		}
		tokenField = "token"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &AuthenticationError{Detail: "encode token request", Cause: err}
	}

	url := strings.TrimRight(a.creds.Host, "/") + env.authPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &AuthenticationError{Detail: "build token request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &AuthenticationError{Detail: fmt.Sprintf("token request to %s failed", url), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", &InvalidCredentialsError{EnvType: env.kind, Detail: string(detail)}
		default:
			return "", &TokenRetrievalError{StatusCode: resp.StatusCode, Detail: string(detail)}
		}
	}

	var parsed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &AuthenticationError{Detail: "decode token response", Cause: err}
	}
	token, _ := parsed[tokenField].(string)
	if token == "" {
		return "", &AuthenticationError{Detail: fmt.Sprintf("token response missing %q", tokenField)}
	}
	return token, nil
}
