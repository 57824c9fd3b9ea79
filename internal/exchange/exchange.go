// Package exchange implements the token-exchange endpoint: a QUIC server
// that swaps a valid third-party OAuth bearer token for a freshly issued
// RTA token.
package exchange

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/empowerID/RealTimeAuth/internal/ctxbind"
	"github.com/empowerID/RealTimeAuth/internal/idp"
	"github.com/empowerID/RealTimeAuth/internal/metrics"
	"github.com/empowerID/RealTimeAuth/internal/repository"
	"github.com/empowerID/RealTimeAuth/internal/rtaerrors"
	"github.com/empowerID/RealTimeAuth/internal/rtatoken"
	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"
)

// GrantType is the only grant_type this endpoint accepts.
const GrantType = "urn:ietf:params:oauth:grant-type:rta_token_exchange"

// maxRequestSize bounds a single exchange request body.
const maxRequestSize = 4096

// Request is the exchange request envelope.
type Request struct {
	GrantType  string `json:"grant_type"`
	OAuthToken string `json:"oauth_token"`
	AgentID    string `json:"agent_id"`
	Provider   string `json:"provider,omitempty"`
}

// Response carries the issued RTA token, base64-encoded.
type Response struct {
	RTAToken string `json:"rtatoken"`
}

// Server accepts QUIC connections and services exchange requests on each
// stream opened against it.
type Server struct {
	listener *quic.Listener
	idp      *idp.Adapter
	signer   *rtatoken.Signer
	repo     *repository.TokenRepository
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

// New builds an exchange Server. repo may be nil: persistence is optional.
func New(listener *quic.Listener, idpAdapter *idp.Adapter, signer *rtatoken.Signer, repo *repository.TokenRepository, m *metrics.Metrics, log *logrus.Entry) *Server {
	return &Server{listener: listener, idp: idpAdapter, signer: signer, repo: repo, metrics: m, log: log}
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
		go s.handleStream(ctx, stream)
	}
}

func (s *Server) handleStream(ctx context.Context, stream *quic.Stream) {
	defer stream.Close()

	outcome := "ok"
	defer func() {
		if s.metrics != nil {
			s.metrics.ExchangeRequestsTotal.WithLabelValues(outcome).Inc()
		}
	}()

	data, err := readBounded(stream, maxRequestSize)
	if err != nil {
		outcome = writeFailure(stream, s.log, err)
		return
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		outcome = writeFailure(stream, s.log, rtaerrors.New(rtaerrors.CodeBadRequest, "malformed exchange request body").WithSource(rtaerrors.SourceTransport))
		return
	}

	if req.GrantType != GrantType {
		outcome = writeFailure(stream, s.log, rtaerrors.New(rtaerrors.CodeUnsupportedGrant, "unsupported grant_type").WithSource(rtaerrors.SourceTransport))
		return
	}

	result, err := s.idp.Introspect(ctx, req.OAuthToken, req.Provider)
	if err != nil {
		outcome = writeFailure(stream, s.log, err)
		return
	}

	sessionUUID, err := uuid.NewRandom()
	if err != nil {
		outcome = writeFailure(stream, s.log, rtaerrors.New(rtaerrors.CodeInternal, "generating session id").WithSource(rtaerrors.SourceToken).WithCause(err))
		return
	}
	sessionID := [16]byte(sessionUUID)

	subject := result.Sub
	if subject == "" {
		subject = req.AgentID
	}
	contextBytes := ctxbind.Derive(subject)

	token, err := s.signer.Issue(sessionID, contextBytes)
	if err != nil {
		outcome = writeFailure(stream, s.log, rtaerrors.New(rtaerrors.CodeInternal, "issuing token").WithSource(rtaerrors.SourceToken).WithCause(err))
		return
	}

	encoded := rtatoken.Encode(token)

	if s.repo != nil {
		if err := s.repo.Save(ctx, token.SessionIDHex(), encoded); err != nil && s.log != nil {
			s.log.WithError(err).Warn("failed to persist issued token, continuing anyway")
		}
	}

	resp := Response{RTAToken: base64.StdEncoding.EncodeToString(encoded)}
	body, err := json.Marshal(resp)
	if err != nil {
		outcome = writeFailure(stream, s.log, rtaerrors.New(rtaerrors.CodeInternal, "marshaling response").WithSource(rtaerrors.SourceTransport).WithCause(err))
		return
	}

	if _, err := stream.Write(body); err != nil && s.log != nil {
		s.log.WithError(err).Warn("failed writing exchange response")
	}
	if s.log != nil {
		s.log.WithField("session_id", token.SessionIDHex()).Info("issued rta token")
	}
}

// writeFailure writes a short plain-text error message to the stream and
// returns the outcome label the caller should record in metrics.
func writeFailure(stream io.Writer, log *logrus.Entry, err error) string {
	var rtaErr *rtaerrors.Error
	code := rtaerrors.CodeInternal
	msg := err.Error()
	if errors.As(err, &rtaErr) {
		code = rtaErr.Code
		msg = rtaErr.Message
	}
	if log != nil {
		log.WithError(err).Warn("exchange request failed")
	}
	_, _ = stream.Write([]byte(msg))
	return string(code)
}

// readBounded reads up to limit+1 bytes from r, returning a request-too-large
// error if the body exceeds limit.
func readBounded(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, rtaerrors.New(rtaerrors.CodeBadRequest, "reading request body").WithSource(rtaerrors.SourceTransport).WithCause(err)
	}
	if int64(len(data)) > limit {
		return nil, rtaerrors.New(rtaerrors.CodeRequestTooLarge, "exchange request exceeds maximum size").WithSource(rtaerrors.SourceTransport)
	}
	return data, nil
}
