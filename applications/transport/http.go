package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/r3e-network/flowrt/infrastructure/errors"
	"github.com/r3e-network/flowrt/infrastructure/reqcontext"
	"github.com/r3e-network/flowrt/system/rpc"
)

// HTTPTransport exposes the RPC router over a single POST endpoint per
// spec.md §4.5: method/content-type/envelope validation, then dispatch.
type HTTPTransport struct {
	router    *rpc.Router
	extractor reqcontext.ClaimsExtractor // nil means no bearer-token extraction
	policy    AccessPolicy               // nil means no admission check
}

// NewHTTPTransport builds a transport dispatching through router. extractor
// may be nil when no ClaimsExtractor is configured (dev/local mode).
func NewHTTPTransport(router *rpc.Router, extractor reqcontext.ClaimsExtractor) *HTTPTransport {
	return &HTTPTransport{router: router, extractor: extractor}
}

// SetPolicy installs an admission check consulted before every dispatched
// call. Passing nil disables the check.
func (t *HTTPTransport) SetPolicy(policy AccessPolicy) {
	t.policy = policy
}

// Mount attaches the transport's single RPC endpoint to r. Every method is
// routed to handleRPC so that a non-POST request gets its JSON 405 envelope.
func (t *HTTPTransport) Mount(r chi.Router) {
	r.HandleFunc("/rpc", t.handleRPC)
}

func (t *HTTPTransport) handleRPC(w http.ResponseWriter, r *http.Request) {
	// rc is derived first, before any validation can reject the request, so
	// every response — including a 405/415/400 rejection — carries a
	// correlationId per spec.md §4.5.
	claims := extractClaims(t.extractor, r.Header.Get("Authorization"))
	rc := reqcontext.New(r.Header, claims)
	if rc.RequestID == "" {
		rc.RequestID = rc.CorrelationID
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeStatus(w, http.StatusMethodNotAllowed, rpc.Failure(fromService(errors.MethodNotAllowed("method not allowed")), rc.CorrelationID))
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/json" && ct != "application/json; charset=utf-8" {
		writeStatus(w, http.StatusUnsupportedMediaType, rpc.Failure(fromService(errors.UnsupportedMediaType("unsupported media type")), rc.CorrelationID))
		return
	}

	var req rpc.Request
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, rpc.Failure(fromService(errors.BadRequest("malformed JSON body")), rc.CorrelationID))
		return
	}
	if req.Procedure == "" {
		writeStatus(w, http.StatusUnprocessableEntity, rpc.Failure(rpc.ValidationFailed("missing procedure name \"p\""), rc.CorrelationID))
		return
	}

	if t.policy != nil {
		if ok, reason := t.policy.Allow(rc.TenantID, r.Header.Get("Authorization")); !ok {
			info := fromService(errors.PermissionDenied(reason))
			info.HTTPStatus = http.StatusTooManyRequests
			writeStatus(w, http.StatusTooManyRequests, rpc.Failure(info, rc.CorrelationID))
			return
		}
	}

	resp := t.router.Call(r.Context(), rc, req)
	writeStatus(w, statusForResponse(resp), resp)
}

func statusForResponse(resp rpc.Response) int {
	if resp.OK || resp.Error == nil {
		return http.StatusOK
	}
	if resp.Error.HTTPStatus != 0 {
		return resp.Error.HTTPStatus
	}
	return http.StatusInternalServerError
}

func writeStatus(w http.ResponseWriter, status int, resp rpc.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func fromService(err *errors.ServiceError) *rpc.ErrorInfo {
	return &rpc.ErrorInfo{Code: string(err.Code), Message: err.Message}
}

// extractClaims pulls claims from an Authorization: Bearer <token> header
// via extractor; a missing header or nil extractor yields no claims.
func extractClaims(extractor reqcontext.ClaimsExtractor, authHeader string) *reqcontext.Claims {
	if extractor == nil || authHeader == "" {
		return nil
	}
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return nil
	}
	claims, err := extractor.Extract(authHeader[len(prefix):])
	if err != nil {
		return nil
	}
	return claims
}
