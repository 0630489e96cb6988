// Package reqcontext builds the immutable per-request context (tenant,
// principal, correlation id, auth claims) that every stateful operation in
// system/actor, system/process, and system/rpc threads through as ctx.
package reqcontext

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/r3e-network/flowrt/infrastructure/errors"
)

type ctxKey string

const requestContextKey ctxKey = "reqcontext"

// RequestContext is the derived identity and request metadata for one
// inbound call, regardless of which transport produced it.
type RequestContext struct {
	CorrelationID string
	RequestID     string
	TenantID      string
	PrincipalID   string
	UserAgent     string
	RemoteAddr    string
	Auth          *Claims
}

// HeaderSource is the subset of header lookups New needs; http.Header and a
// websocket/SSE handshake's header map both satisfy it directly.
type HeaderSource interface {
	Get(key string) string
}

// New derives a RequestContext from transport headers and, when present,
// claims already extracted from a bearer token. Extraction order per
// spec: (1) token claims take priority for tenant/principal; (2) headers
// fill gaps the token left empty; (3) the correlation id is taken from
// x-correlation-id, then x-request-id, and minted fresh when neither is set.
func New(headers HeaderSource, claims *Claims) *RequestContext {
	rc := &RequestContext{
		RequestID:  firstNonEmpty(headers.Get("x-request-id")),
		UserAgent:  headers.Get("user-agent"),
		RemoteAddr: remoteIP(headers),
		Auth:       claims,
	}

	rc.CorrelationID = firstNonEmpty(headers.Get("x-correlation-id"), rc.RequestID)
	if rc.CorrelationID == "" {
		rc.CorrelationID = newCorrelationID()
	}

	if claims != nil {
		rc.TenantID = claims.TenantID
		rc.PrincipalID = claims.Subject
	}
	if rc.TenantID == "" {
		rc.TenantID = headers.Get("x-tenant-id")
	}
	if rc.PrincipalID == "" {
		rc.PrincipalID = headers.Get("x-user-id")
	}

	return rc
}

// newCorrelationID mints an id matching the testable-properties shape
// ^req_[0-9]+_[a-z0-9]+$: a nanosecond timestamp for rough ordering plus a
// random hex suffix for uniqueness across processes sharing one clock tick.
func newCorrelationID() string {
	var suffix [8]byte
	_, _ = rand.Read(suffix[:])
	return fmt.Sprintf("req_%d_%s", time.Now().UnixNano(), hex.EncodeToString(suffix[:]))
}

// remoteIP applies the forwarded-for heuristic: the left-most address in
// X-Forwarded-For, falling back to X-Real-IP.
func remoteIP(headers HeaderSource) string {
	if fwd := headers.Get("x-forwarded-for"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	return headers.Get("x-real-ip")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// WithContext attaches rc to a stdlib context.Context.
func WithContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// FromContext retrieves the RequestContext attached by WithContext, or nil.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey).(*RequestContext)
	return rc
}

// adminRole is the role name treated as "every permission" per the
// validateAccess admin-equivalent clause.
const adminRole = "admin"

// ValidateAccess succeeds when rc's claims grant "<resource>:<action>"
// directly or via the admin-equivalent role; otherwise it returns a
// PermissionDenied ServiceError naming the missing capability.
func ValidateAccess(rc *RequestContext, resource, action string) error {
	capability := resource + ":" + action
	if rc == nil || rc.Auth == nil {
		return errors.PermissionDenied(capability)
	}
	for _, role := range rc.Auth.Roles {
		if role == adminRole {
			return nil
		}
	}
	for _, perm := range rc.Auth.Permissions {
		if perm == capability {
			return nil
		}
	}
	return errors.PermissionDenied(capability)
}
