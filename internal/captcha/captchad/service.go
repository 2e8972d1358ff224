// Package captchad is the bundled challenge service: a small HTTP server
// speaking the same wire format the bot's captcha client expects, so the bot
// can run without a third-party captcha host.
package captchad

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dchest/captcha"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// Number of digits in a challenge image.
	challengeDigits = 6
	// How long an unanswered challenge stays valid.
	defaultChallengeTTL = 5 * time.Minute
)

// issueResponse is the generation endpoint's wire shape. The image travels as
// a data-URI-prefixed base64 string.
type issueResponse struct {
	UUID    string `json:"uuid"`
	Captcha string `json:"captcha"`
}

// verifyRequest is the verification endpoint's wire shape.
type verifyRequest struct {
	UUID    string `json:"uuid"`
	Captcha string `json:"captcha"`
}

type challenge struct {
	answer  string
	created time.Time
}

// Service generates digit-image challenges and verifies answers against an
// in-memory, expiring store. Challenges are single use.
type Service struct {
	mu         sync.Mutex
	challenges map[string]challenge
	ttl        time.Duration
	logger     *zap.Logger
}

// NewService creates a challenge service.
func NewService(logger *zap.Logger) *Service {
	return &Service{
		challenges: make(map[string]challenge),
		ttl:        defaultChallengeTTL,
		logger:     logger.Named("captchad"),
	}
}

// Handler returns the service's HTTP routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/captcha", s.handleIssue)
	mux.HandleFunc("/verify", s.handleVerify)

	return mux
}

// handleIssue generates a new challenge and returns its ID and image.
func (s *Service) handleIssue(w http.ResponseWriter, _ *http.Request) {
	digits := captcha.RandomDigits(challengeDigits)
	id := uuid.NewString()

	img := captcha.NewImage(id, digits, captcha.StdWidth, captcha.StdHeight)

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		s.logger.Error("Failed to encode challenge image", zap.Error(err))
		http.Error(w, "failed to encode challenge image", http.StatusInternalServerError)

		return
	}

	s.mu.Lock()
	s.sweepLocked()
	s.challenges[id] = challenge{answer: digitsToString(digits), created: time.Now()}
	s.mu.Unlock()

	resp := issueResponse{
		UUID:    id,
		Captcha: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}

	body, err := sonic.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)

	s.logger.Debug("Issued challenge", zap.String("uuid", id))
}

// handleVerify checks an answer. HTTP 200 means pass; every other status is a
// failure. The challenge is consumed either way.
func (s *Service) handleVerify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var req verifyRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	chal, ok := s.challenges[req.UUID]
	delete(s.challenges, req.UUID)
	s.mu.Unlock()

	if !ok || time.Since(chal.created) > s.ttl {
		http.Error(w, "unknown or expired challenge", http.StatusNotFound)
		return
	}

	if req.Captcha != chal.answer {
		http.Error(w, "verification failed", http.StatusUnauthorized)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// sweepLocked drops expired challenges. Caller holds the lock.
func (s *Service) sweepLocked() {
	now := time.Now()
	for id, chal := range s.challenges {
		if now.Sub(chal.created) > s.ttl {
			delete(s.challenges, id)
		}
	}
}

func digitsToString(digits []byte) string {
	out := make([]byte, len(digits))
	for i, d := range digits {
		out[i] = '0' + d
	}

	return string(out)
}
