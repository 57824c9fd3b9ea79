// Package authzctx holds the in-memory session-to-authorization-context map
// consulted by the enforcement endpoint.
package authzctx

import (
	"sync"

	"github.com/empowerID/RealTimeAuth/internal/rtaerrors"
)

// riskScoreDenyThreshold is the risk score at or above which an action is
// always denied, regardless of the requested resource.
const riskScoreDenyThreshold = 50

// Context is the authorization context bound to a session at issuance time.
type Context struct {
	UserID           string
	AllowedResources map[string]struct{}
	RiskScore        int
}

// IsActionAllowed reports whether resource may be accessed under this
// context: it must be in AllowedResources and RiskScore must stay below the
// deny threshold.
func (c Context) IsActionAllowed(resource string) bool {
	if c.RiskScore >= riskScoreDenyThreshold {
		return false
	}
	_, ok := c.AllowedResources[resource]
	return ok
}

// NewContext builds a Context from a resource list, matching the shape
// populated by the external policy engine.
func NewContext(userID string, allowedResources []string, riskScore int) Context {
	set := make(map[string]struct{}, len(allowedResources))
	for _, r := range allowedResources {
		set[r] = struct{}{}
	}
	return Context{UserID: userID, AllowedResources: set, RiskScore: riskScore}
}

// Store is a concurrent session_id_hex -> Context map guarded by a
// sync.RWMutex. Writes are atomic per entry. Reads share the read lock and do
// not block each other, but they wait while a write holds the lock, so they
// are not wait-free.
type Store struct {
	mu       sync.RWMutex
	contexts map[string]Context
}

// NewStore creates an empty context store.
func NewStore() *Store {
	return &Store{contexts: make(map[string]Context)}
}

// Put installs or replaces the context for a session. Callers (the external
// policy engine) own the write path; the core only reads.
func (s *Store) Put(sessionIDHex string, ctx Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[sessionIDHex] = ctx
}

// Get returns the context for a session, if any.
func (s *Store) Get(sessionIDHex string) (Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, ok := s.contexts[sessionIDHex]
	return ctx, ok
}

// ValidateAction returns nil iff a context exists for sessionIDHex and its
// IsActionAllowed(resource) holds. Missing entries are Unauthorized.
func (s *Store) ValidateAction(sessionIDHex, resource string) error {
	ctx, ok := s.Get(sessionIDHex)
	if !ok || !ctx.IsActionAllowed(resource) {
		return rtaerrors.New(rtaerrors.CodeUnauthorized, "action not authorized for session").WithSource(rtaerrors.SourceContext)
	}
	return nil
}
