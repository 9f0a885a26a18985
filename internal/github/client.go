// Package github is a small REST client for the parts of the GitHub API the
// service relies on: starring, star checks, repository metadata and the
// authenticated user's profile.
//
// Per-user calls authenticate with that user's OAuth token through an
// oauth2 static token source. Metadata calls use the optional app token.
// All requests share one outbound rate limiter.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

// ErrNotFound is returned when GitHub answers 404.
var ErrNotFound = errors.New("github: not found")

// StatusError carries an unexpected HTTP status.
type StatusError struct {
	Method string
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github: %s %s returned status %d", e.Method, e.Path, e.Status)
}

// StarState is the answer to "has this user starred this repository".
type StarState int

const (
	// StarUnknown means GitHub did not give a usable answer. Callers must not
	// act on it.
	StarUnknown StarState = iota
	Starred
	NotStarred
)

func (s StarState) String() string {
	switch s {
	case Starred:
		return "starred"
	case NotStarred:
		return "not_starred"
	default:
		return "unknown"
	}
}

// Owner is the repository owner as GitHub reports it.
type Owner struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// Repo is the subset of GET /repos/{owner}/{repo} we store.
type Repo struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	HTMLURL         string `json:"html_url"`
	Language        string `json:"language"`
	StargazersCount int64  `json:"stargazers_count"`
	ForksCount      int64  `json:"forks_count"`
	WatchersCount   int64  `json:"watchers_count"`
	Private         bool   `json:"private"`
	Owner           Owner  `json:"owner"`
}

// User is the subset of GET /user we store.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Options configures a Client. Zero values pick sensible defaults.
type Options struct {
	BaseURL    string
	AppToken   string // optional, raises the unauthenticated rate limit for metadata calls
	HTTPClient *http.Client
	// RequestsPerSecond caps outbound calls across all users.
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the GitHub REST API.
type Client struct {
	baseURL  string
	base     *http.Client
	appToken oauth2.TokenSource
	limiter  *rate.Limiter
}

// NewClient builds a Client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		base:    opts.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
	}
	if opts.AppToken != "" {
		c.appToken = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.AppToken})
	}
	return c
}

// Star marks fullName ("owner/repo") as starred by the token's user.
func (c *Client) Star(ctx context.Context, accessToken, fullName string) error {
	path, err := starredPath(fullName)
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPut, path)
	if err != nil {
		return err
	}
	// GitHub requires an explicit zero length on this PUT.
	req.ContentLength = 0
	req.Header.Set("Content-Length", "0")

	resp, err := c.do(req, userTokenSource(accessToken))
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return &StatusError{Method: req.Method, Path: path, Status: resp.StatusCode}
	}
	return nil
}

// IsStarred checks the token user's star on fullName. Only 204 and 404 are
// definite; any other status yields StarUnknown with an error.
func (c *Client) IsStarred(ctx context.Context, accessToken, fullName string) (StarState, error) {
	path, err := starredPath(fullName)
	if err != nil {
		return StarUnknown, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return StarUnknown, err
	}

	resp, err := c.do(req, userTokenSource(accessToken))
	if err != nil {
		return StarUnknown, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusNoContent:
		return Starred, nil
	case http.StatusNotFound:
		return NotStarred, nil
	default:
		return StarUnknown, &StatusError{Method: req.Method, Path: path, Status: resp.StatusCode}
	}
}

// GetRepository fetches public metadata for fullName.
func (c *Client) GetRepository(ctx context.Context, fullName string) (*Repo, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}
	path := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name)

	var repo Repo
	if err := c.getJSON(ctx, path, c.appToken, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// GetAuthenticatedUser returns the profile behind accessToken.
func (c *Client) GetAuthenticatedUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if err := c.getJSON(ctx, "/user", userTokenSource(accessToken), &u); err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, errors.New("github: /user returned an invalid user (ID = 0)")
	}
	return &u, nil
}

// GetUser fetches a public profile by login.
func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	if login == "" || strings.Contains(login, "/") {
		return nil, fmt.Errorf("github: malformed login %q", login)
	}
	var u User
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(login), c.appToken, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) getJSON(ctx context.Context, path string, ts oauth2.TokenSource, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}

	resp, err := c.do(req, ts)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode != http.StatusOK:
		return &StatusError{Method: req.Method, Path: path, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github: decoding %s: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("github: building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "starswipe")
	return req, nil
}

// do waits for the limiter and sends req, authenticated by ts when non-nil.
func (c *Client) do(req *http.Request, ts oauth2.TokenSource) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("github: rate limiter: %w", err)
	}

	client := c.base
	if ts != nil {
		client = &http.Client{
			Timeout:   c.base.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: c.base.Transport},
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: %s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

func userTokenSource(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
}

func starredPath(fullName string) (string, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return "", err
	}
	return "/user/starred/" + url.PathEscape(owner) + "/" + url.PathEscape(name), nil
}

func splitFullName(fullName string) (string, string, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("github: malformed repository name %q", fullName)
	}
	return owner, name, nil
}

// drain lets the transport reuse the connection.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
