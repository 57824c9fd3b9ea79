// Package enforcement implements the enforcement endpoint: a QUIC server
// that checks a presented RTA token against revocation, cryptographic and
// context validity, and the caller's authorization context before granting
// access to a resource.
package enforcement

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/empowerID/RealTimeAuth/internal/authzctx"
	"github.com/empowerID/RealTimeAuth/internal/ctxbind"
	"github.com/empowerID/RealTimeAuth/internal/metrics"
	"github.com/empowerID/RealTimeAuth/internal/revocation"
	"github.com/empowerID/RealTimeAuth/internal/rtaerrors"
	"github.com/empowerID/RealTimeAuth/internal/rtatoken"
	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"
)

// maxRequestSize bounds a single enforcement request body.
const maxRequestSize = 8192

// Request is the enforcement request envelope: a base64-encoded RTA token
// and the resource the caller wants to act on.
type Request struct {
	RTAToken string `json:"rtatoken"`
	Resource string `json:"resource"`
}

// Server accepts QUIC connections and evaluates enforcement requests on
// each stream opened against it.
type Server struct {
	listener *quic.Listener
	verifier *rtatoken.Verifier
	contexts *authzctx.Store
	revoked  *revocation.Set
	maxAge   time.Duration
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

// New builds an enforcement Server.
func New(listener *quic.Listener, verifier *rtatoken.Verifier, contexts *authzctx.Store, revoked *revocation.Set, maxAge time.Duration, m *metrics.Metrics, log *logrus.Entry) *Server {
	return &Server{
		listener: listener,
		verifier: verifier,
		contexts: contexts,
		revoked:  revoked,
		maxAge:   maxAge,
		metrics:  m,
		log:      log,
	}
}

// Run accepts connections until ctx is cancelled or the listener closes.
func (s *Server) Run(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting quic connection: %w", err)
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go s.handleStream(stream)
	}
}

func (s *Server) handleStream(stream *quic.Stream) {
	defer stream.Close()

	reason := "granted"
	defer func() {
		if s.metrics != nil {
			s.metrics.EnforcementOutcomesTotal.WithLabelValues(reason).Inc()
			s.metrics.EnforcementRequestsTotal.WithLabelValues(reason).Inc()
		}
	}()

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.TokenValidationDuration.Observe(time.Since(start).Seconds())
		}
	}()

	data, err := io.ReadAll(io.LimitReader(stream, maxRequestSize+1))
	if err != nil || int64(len(data)) > maxRequestSize {
		reason = string(rtaerrors.CodeRequestTooLarge)
		s.deny(stream, "request too large")
		return
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		reason = string(rtaerrors.CodeBadRequest)
		s.deny(stream, "malformed enforcement request")
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.RTAToken)
	if err != nil {
		reason = string(rtaerrors.CodeBadHeader)
		s.respond(stream, fmt.Sprintf("Failed to deserialize token: %v", err))
		return
	}

	tok, err := rtatoken.Decode(raw)
	if err != nil {
		reason = string(rtaerrors.CodeBadHeader)
		s.respond(stream, fmt.Sprintf("Failed to deserialize token: %v", err))
		return
	}

	sessionIDHex := tok.SessionIDHex()

	if s.revoked.IsRevoked(sessionIDHex) {
		reason = string(rtaerrors.CodeRevoked)
		s.respond(stream, "Token revoked")
		if s.log != nil {
			s.log.WithField("session_id", sessionIDHex).Info("enforcement denied: revoked")
		}
		return
	}

	authCtx, ok := s.contexts.Get(sessionIDHex)
	if !ok {
		reason = string(rtaerrors.CodeUnauthorized)
		s.deny(stream, "no authorization context for session")
		return
	}

	contextBytes := ctxbind.Derive(authCtx.UserID)
	validationStart := time.Now()
	err = s.verifier.Validate(tok, contextBytes, s.maxAge)
	if s.metrics != nil {
		s.metrics.TokenValidationDuration.Observe(time.Since(validationStart).Seconds())
	}
	if err != nil {
		reason = reasonFromError(err)
		s.deny(stream, err.Error())
		return
	}

	if err := s.contexts.ValidateAction(sessionIDHex, req.Resource); err != nil {
		reason = reasonFromError(err)
		s.deny(stream, fmt.Sprintf("not authorized for resource %q", req.Resource))
		return
	}

	s.respond(stream, fmt.Sprintf("Access granted to %s", req.Resource))
	if s.log != nil {
		s.log.WithFields(logrus.Fields{"session_id": sessionIDHex, "resource": req.Resource}).Info("enforcement granted")
	}
}

func (s *Server) deny(stream io.Writer, reason string) {
	s.respond(stream, "Access denied: "+reason)
}

func (s *Server) respond(stream io.Writer, message string) {
	if _, err := stream.Write([]byte(message)); err != nil && s.log != nil {
		s.log.WithError(err).Warn("failed writing enforcement response")
	}
}

func reasonFromError(err error) string {
	var rtaErr *rtaerrors.Error
	if e, ok := err.(*rtaerrors.Error); ok {
		rtaErr = e
		return string(rtaErr.Code)
	}
	return string(rtaerrors.CodeInternal)
}
