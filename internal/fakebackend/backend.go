// Package fakebackend is an in-process identity provider plus tenant-aware
// services used by integration tests and local runs of the CLI.
package fakebackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tenant-session/clients"
	"github.com/jrsteele09/go-tenant-session/credentials"
	"github.com/jrsteele09/go-tenant-session/oauth2"
)

const (
	ClientID   = "edc-frontend"
	signingKey = "fakebackend-signing-key"
)

// Header tables served by the fake services.
var (
	SelectionHeaders = clients.HeaderNames{
		EstablishmentSelect:  "X-Etab-Select",
		RoleSelect:           "X-Role-Select",
		EstablishmentConfirm: "X-Etab",
		RoleConfirm:          "X-Roles",
	}
	LegacyHeaders = clients.HeaderNames{
		EstablishmentSelect:  "X-Etab",
		RoleSelect:           "X-Roles",
		EstablishmentConfirm: "X-Etab",
		RoleConfirm:          "X-Roles",
	}
)

// Backend serves OIDC discovery, the token endpoint, protected service routes
// under /{service}/ and a websocket at /message/ws.
type Backend struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu            sync.Mutex
	accessTokens  map[string]bool
	refreshTokens map[string]bool
	refreshCalls  int
	failRefresh   bool
	rotateRefresh bool
	accessTTL     time.Duration
	confirmEtab   string
	confirmRoles  string
	requests      []http.Header
	sockets       map[*websocket.Conn]map[string]string // Connection to its etab_id and role query
	socketMu      sync.Mutex // Serialises websocket writes
}

func New() *Backend {
	b := &Backend{
		accessTokens:  make(map[string]bool),
		refreshTokens: make(map[string]bool),
		rotateRefresh: true,
		accessTTL:     5 * time.Minute,
		sockets:       make(map[*websocket.Conn]map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", b.discoveryHandler)
	mux.HandleFunc("POST /token", ChainMiddleware(b.tokenHandler, b.LoggingMiddleware, b.RecoverMiddleware))
	mux.HandleFunc("GET /message/ws", b.websocketHandler)
	mux.HandleFunc("/{service}/{path...}", ChainMiddleware(b.serviceHandler, b.LoggingMiddleware, b.RecoverMiddleware, b.RequireBearer))
	b.server = httptest.NewServer(mux)
	return b
}

func (b *Backend) URL() string {
	return b.server.URL
}

// Client returns an HTTP client configured for the backend.
func (b *Backend) Client() *http.Client {
	return b.server.Client()
}

func (b *Backend) Close() {
	b.socketMu.Lock()
	for conn := range b.sockets {
		_ = conn.Close()
	}
	b.socketMu.Unlock()
	b.server.Close()
}

// Binding returns a service binding pointing at /{name}/ on the backend.
func (b *Backend) Binding(name string, headers clients.HeaderNames) clients.Binding {
	return clients.Binding{Name: name, BaseURL: b.URL() + "/" + name + "/", Headers: headers}
}

// IssueSession mints a credential the backend accepts.
func (b *Backend) IssueSession(name string, roles ...string) credentials.Credential {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(name, roles)
}

func (b *Backend) issueLocked(name string, roles []string) credentials.Credential {
	anyRoles := make([]any, 0, len(roles))
	for _, role := range roles {
		anyRoles = append(anyRoles, role)
	}
	access, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub":          uuid.NewString(),
		"name":         name,
		"exp":          time.Now().Add(b.accessTTL).Unix(),
		"iat":          time.Now().Unix(),
		"jti":          uuid.NewString(),
		"realm_access": map[string]any{"roles": anyRoles},
	}).SignedString([]byte(signingKey))
	if err != nil {
		panic(fmt.Sprintf("fakebackend: signing token: %v", err))
	}
	refresh := uuid.NewString()
	b.accessTokens[access] = true
	b.refreshTokens[refresh] = true
	return credentials.Credential{AccessToken: access, RefreshToken: refresh}
}

// ExpireAccessTokens makes every issued access token answer 401.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessTokens = make(map[string]bool)
}

// FailRefresh makes the token endpoint reject every refresh grant.
func (b *Backend) FailRefresh(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failRefresh = fail
}

// SetRotateRefresh controls whether refresh grants return a new refresh token.
func (b *Backend) SetRotateRefresh(rotate bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rotateRefresh = rotate
}

// SetAccessTTL sets the lifetime of access tokens issued from now on.
func (b *Backend) SetAccessTTL(ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessTTL = ttl
}

// SetConfirmation fixes the confirmation headers. Empty values echo the request's selection instead.
func (b *Backend) SetConfirmation(establishmentID, roles string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmEtab = establishmentID
	b.confirmRoles = roles
}

func (b *Backend) RefreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// Requests returns the headers of every authorised service request.
func (b *Backend) Requests() []http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]http.Header(nil), b.requests...)
}

func (b *Backend) accessTokenValid(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accessTokens[token]
}

func (b *Backend) discoveryHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                 b.URL(),
		"authorization_endpoint": b.URL() + "/auth",
		"token_endpoint":         b.URL() + "/token",
		"jwks_uri":               b.URL() + "/certs",
		"end_session_endpoint":   b.URL() + "/logout",
	})
}

func (b *Backend) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, oauth2.ErrorInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}
	if oauth2.GrantType(r.PostForm.Get("grant_type")) != oauth2.RefreshTokenGrant {
		writeJSONError(w, oauth2.ErrorUnsupportedGrantType, "only refresh_token is supported", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("client_id") != ClientID {
		writeJSONError(w, oauth2.ErrorInvalidClient, "unknown client", http.StatusUnauthorized)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshCalls++

	presented := r.PostForm.Get("refresh_token")
	if b.failRefresh || !b.refreshTokens[presented] {
		writeJSONError(w, oauth2.ErrorInvalidGrant, "Session not active", http.StatusBadRequest)
		return
	}

	issued := b.issueLocked("Refreshed User", []string{"teacher"})
	resp := oauth2.TokenResponse{
		AccessToken: issued.AccessToken,
		TokenType:   oauth2.TokenTypeBearer,
		ExpiresIn:   int(b.accessTTL.Seconds()),
	}
	if b.rotateRefresh {
		delete(b.refreshTokens, presented)
		resp.RefreshToken = issued.RefreshToken
	} else {
		delete(b.refreshTokens, issued.RefreshToken)
	}
	writeJSON(w, http.StatusOK, resp)
}

// serviceHandler echoes the request. Confirmation headers come from
// SetConfirmation or, when unset, from whatever selection the client sent.
func (b *Backend) serviceHandler(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.requests = append(b.requests, r.Header.Clone())
	confirmEtab, confirmRoles := b.confirmEtab, b.confirmRoles
	b.mu.Unlock()

	if confirmEtab == "" {
		confirmEtab = firstNonEmpty(r.Header.Get("X-Etab-Select"), r.Header.Get("X-Etab"))
	}
	if confirmRoles == "" {
		confirmRoles = firstNonEmpty(r.Header.Get("X-Role-Select"), r.Header.Get("X-Roles"))
	}
	if confirmEtab != "" {
		w.Header().Set("X-Etab", confirmEtab)
	}
	if confirmRoles != "" {
		w.Header().Set("X-Roles", confirmRoles)
	}

	var body any
	if r.Body != nil && r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": r.PathValue("service"),
		"path":    r.PathValue("path"),
		"method":  r.Method,
		"body":    body,
	})
}

func (b *Backend) websocketHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !b.accessTokenValid(query.Get("token")) {
		writeJSONError(w, "unauthorized", "Invalid token", http.StatusUnauthorized)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Err(err).Msg("[fakebackend websocket] upgrade failed")
		return
	}

	b.socketMu.Lock()
	b.sockets[conn] = map[string]string{"etab_id": query.Get("etab_id"), "role": query.Get("role")}
	b.socketMu.Unlock()

	defer func() {
		b.socketMu.Lock()
		delete(b.sockets, conn)
		b.socketMu.Unlock()
		_ = conn.Close()
	}()

	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		// Typing and presence events are echoed back to every connected client.
		if strings.HasPrefix(msg.Type, "typing_") || msg.Type == "presence_update" {
			b.Broadcast(msg.Type, msg.Payload)
		}
	}
}

// Broadcast sends one event to every connected websocket client.
func (b *Backend) Broadcast(eventType string, payload any) {
	b.socketMu.Lock()
	defer b.socketMu.Unlock()
	for conn := range b.sockets {
		if err := conn.WriteJSON(map[string]any{"type": eventType, "payload": payload}); err != nil {
			log.Err(err).Msg("[fakebackend Broadcast] write failed")
		}
	}
}

// DropSockets closes every websocket without a close frame, as a network failure would.
func (b *Backend) DropSockets() {
	b.socketMu.Lock()
	defer b.socketMu.Unlock()
	for conn := range b.sockets {
		_ = conn.NetConn().Close()
	}
}

// Sockets is the number of connected websocket clients.
func (b *Backend) Sockets() int {
	b.socketMu.Lock()
	defer b.socketMu.Unlock()
	return len(b.sockets)
}

// SocketQuery returns the etab_id and role of the connected clients.
func (b *Backend) SocketQuery() []map[string]string {
	b.socketMu.Lock()
	defer b.socketMu.Unlock()
	out := make([]map[string]string, 0, len(b.sockets))
	for _, q := range b.sockets {
		out = append(out, q)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, oauth2.ErrorResponse{Error: errorCode, ErrorDescription: description})
}
