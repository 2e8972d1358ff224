// Package captcha talks to the challenge service: it fetches new challenge
// images and submits candidate answers for verification.
package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// ErrTransport marks a captcha service that is unreachable or answered with
// something other than a well-formed challenge.
var ErrTransport = errors.New("captcha service transport failure")

const (
	issueEndpoint  = "/captcha"
	verifyEndpoint = "/verify"

	// Length of the "data:image/png;base64," envelope prefix on the challenge
	// image. The prefix content is not inspected, only stripped.
	dataURIPrefixLen = 22
)

// Challenge is one issued captcha: an opaque ID and the decoded image. It is
// owned by the session that issued it and never persisted.
type Challenge struct {
	ID       string
	Image    []byte
	IssuedAt time.Time
}

// issueResponse is the wire shape of the generation endpoint.
type issueResponse struct {
	UUID    string `json:"uuid"`
	Captcha string `json:"captcha"`
}

// verifyRequest is the wire shape of the verification endpoint.
type verifyRequest struct {
	UUID    string `json:"uuid"`
	Captcha string `json:"captcha"`
}

// Client calls the challenge service. It performs no retries or backoff:
// user-facing retry means a fresh challenge and belongs to the caller.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a captcha service client. The HTTP client is constructed
// once here and shared by all sessions.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("captcha"),
	}
}

// Issue fetches a new challenge and decodes its image.
func (c *Client) Issue(ctx context.Context) (*Challenge, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+issueEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build issue request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	var payload issueResponse
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid response body: %w", ErrTransport, err)
	}

	image, err := decodeImage(payload.Captcha)
	if err != nil {
		return nil, err
	}

	return &Challenge{
		ID:       payload.UUID,
		Image:    image,
		IssuedAt: time.Now(),
	}, nil
}

// Verify submits a candidate answer for the challenge. True only on HTTP 200;
// wrong answers, other statuses, and network failures are all false. Callers
// cannot and must not distinguish "wrong answer" from "service unreachable"
// at this layer.
func (c *Client) Verify(ctx context.Context, challengeID, answer string) bool {
	body, err := sonic.Marshal(verifyRequest{UUID: challengeID, Captcha: answer})
	if err != nil {
		c.logger.Warn("Failed to encode verify request", zap.Error(err))
		return false
	}

	// The service takes the verification payload as a JSON body on a GET.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+verifyEndpoint, bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("Failed to build verify request", zap.Error(err))
		return false
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("Verify request failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// decodeImage strips the fixed-length data-URI prefix and decodes the
// remaining base64 into raw image bytes.
func decodeImage(data string) ([]byte, error) {
	if len(data) <= dataURIPrefixLen {
		return nil, fmt.Errorf("%w: challenge image too short", ErrTransport)
	}

	image, err := base64.StdEncoding.DecodeString(data[dataURIPrefixLen:])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid challenge image encoding: %w", ErrTransport, err)
	}

	return image, nil
}
