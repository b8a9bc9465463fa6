package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"messagely/internal/auth"
	"messagely/internal/storage"
)

// Store is the persistence surface handlers depend on. *storage.Store
// implements it; tests substitute an in-memory double.
type Store interface {
	CreateUser(ctx context.Context, nu storage.NewUser) (storage.User, error)
	UserByUsername(ctx context.Context, username string) (storage.User, error)
	CredentialByUsername(ctx context.Context, username string) (string, error)
	TouchLastLogin(ctx context.Context, username string) error
	AllUsers(ctx context.Context) ([]storage.UserSummary, error)

	CreateMessage(ctx context.Context, from, to, body string) (storage.Message, error)
	MessageByID(ctx context.Context, id int64) (storage.Message, error)
	MessageRecipient(ctx context.Context, id int64) (string, error)
	MarkRead(ctx context.Context, id int64) (storage.Message, error)
	MessagesFrom(ctx context.Context, username string) ([]storage.Message, error)
	MessagesTo(ctx context.Context, username string) ([]storage.Message, error)
}

type parsers struct {
	loginPool         fastjson.ParserPool
	registerPool      fastjson.ParserPool
	createMessagePool fastjson.ParserPool
}

type handler struct {
	logger   *zap.SugaredLogger
	store    Store
	resolver *auth.Resolver
	tokens   *auth.TokenService
	hasher   auth.PasswordHasher
	parsers  parsers
}

// unauthorized writes the uniform unauthorized response. Unauthenticated
// and forbidden outcomes are byte-identical on the wire so a denial never
// reveals whether the target resource exists.
func unauthorized(w http.ResponseWriter) {
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// deny logs the internal guard reason and writes the uniform unauthorized response
func (h *handler) deny(w http.ResponseWriter, d auth.Decision) {
	h.logger.Debugf("authorization denied: %s", d.Reason())
	unauthorized(w)
}

func (h *handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(payload)
	if err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// requiredString extracts a non-empty string field from a parsed JSON value.
// The returned message is an empty string when the field is valid.
func requiredString(v *fastjson.Value, field string) (string, string) {
	if !v.Exists(field) {
		return "", "Missing Field \"" + field + "\""
	}

	fieldValue := v.Get(field)
	if fieldValue.Type() != fastjson.TypeString {
		return "", "Field \"" + field + "\" must be a string"
	}

	s := strings.Trim(string(fieldValue.MarshalTo(nil)), `"`)
	if len(s) == 0 {
		return "", "Field \"" + field + "\" must have non-zero length"
	}

	return s, ""
}

// issueToken signs a token for username and refreshes last_login_at
func (h *handler) issueToken(ctx context.Context, username string) (string, error) {
	token, err := h.tokens.Sign(username)
	if err != nil {
		return "", err
	}

	if err := h.store.TouchLastLogin(ctx, username); err != nil {
		return "", err
	}

	return token, nil
}

// login handles HTTP requests on "POST /login" endpoint
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.loginPool.Get()
	defer h.parsers.loginPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, msg := requiredString(v, "username")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	password, msg := requiredString(v, "password")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	// a missing user and a wrong password are indistinguishable to the caller
	credential, err := h.store.CredentialByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "Invalid username/password combo", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if !h.hasher.Compare(credential, password) {
		http.Error(w, "Invalid username/password combo", http.StatusBadRequest)
		return
	}

	token, err := h.issueToken(r.Context(), username)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// register handles HTTP requests on "POST /register" endpoint
// a successful registration logs the new user in and returns a token
func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.registerPool.Get()
	defer h.parsers.registerPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, msg := requiredString(v, "username")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	password, msg := requiredString(v, "password")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	hashed, err := h.hasher.Hash(password)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	user, err := h.store.CreateUser(r.Context(), storage.NewUser{
		Username:  username,
		Password:  hashed,
		FirstName: fastjson.GetString(body, "first_name"),
		LastName:  fastjson.GetString(body, "last_name"),
		Phone:     fastjson.GetString(body, "phone"),
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			http.Error(w, "User already exists", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token, err := h.issueToken(r.Context(), user.Username)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]string{"token": token})
}

// allUsers handles HTTP requests on "GET /users" endpoint
// any authenticated identity may list all users
func (h *handler) allUsers(w http.ResponseWriter, r *http.Request) {
	if d := auth.RequireAuthenticated(r.Context()); !d.Allowed() {
		h.deny(w, d)
		return
	}

	users, err := h.store.AllUsers(r.Context())
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// userByUsername handles HTTP requests on "GET /users/{username}" endpoint
// only a user may view their own profile detail
func (h *handler) userByUsername(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	if d := auth.RequireMatchingUsername(r.Context(), username); !d.Allowed() {
		h.deny(w, d)
		return
	}

	user, err := h.store.UserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// messagesTo handles HTTP requests on "GET /users/{username}/to" endpoint
// only a user may view messages they received
func (h *handler) messagesTo(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	if d := auth.RequireMatchingUsername(r.Context(), username); !d.Allowed() {
		h.deny(w, d)
		return
	}

	messages, err := h.store.MessagesTo(r.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// messagesFrom handles HTTP requests on "GET /users/{username}/from" endpoint
// only a user may view messages they sent
func (h *handler) messagesFrom(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	if d := auth.RequireMatchingUsername(r.Context(), username); !d.Allowed() {
		h.deny(w, d)
		return
	}

	messages, err := h.store.MessagesFrom(r.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// messageID parses the {id} path parameter. The returned message is an
// empty string when the id is valid.
func messageID(r *http.Request) (int64, string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, "Message id must be a positive 64-bit integer value"
	}

	return id, ""
}

// messageByID handles HTTP requests on "GET /messages/{id}" endpoint
// only the sender or the recipient may view a message
func (h *handler) messageByID(w http.ResponseWriter, r *http.Request) {
	if d := auth.RequireAuthenticated(r.Context()); !d.Allowed() {
		h.deny(w, d)
		return
	}

	id, msg := messageID(r)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	message, err := h.store.MessageByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotExist) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if d := auth.RequireParticipant(r.Context(), message); !d.Allowed() {
		h.deny(w, d)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"message": message})
}

// createMessage handles HTTP requests on "POST /messages" endpoint
// the authenticated identity becomes the sender unconditionally
func (h *handler) createMessage(w http.ResponseWriter, r *http.Request) {
	if d := auth.RequireAuthenticated(r.Context()); !d.Allowed() {
		h.deny(w, d)
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.createMessagePool.Get()
	defer h.parsers.createMessagePool.Put(parser)
	v, _ := parser.ParseBytes(body)

	toUsername, msg := requiredString(v, "to_username")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	text, msg := requiredString(v, "body")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	message, err := h.store.CreateMessage(r.Context(), identity.Username, toUsername, text)
	if err != nil {
		// a nonexistent recipient is a validation failure, not an authorization one
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "Recipient with provided username does not exist", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{"message": message})
}

// markMessageRead handles HTTP requests on "POST /messages/{id}/read" endpoint
// only the intended recipient may mark a message read; a second mark-read
// call is a no-op keeping the original read_at
func (h *handler) markMessageRead(w http.ResponseWriter, r *http.Request) {
	if d := auth.RequireAuthenticated(r.Context()); !d.Allowed() {
		h.deny(w, d)
		return
	}

	id, msg := messageID(r)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	if d := auth.RequireRecipientByID(r.Context(), h.store, id); !d.Allowed() {
		h.deny(w, d)
		return
	}

	message, err := h.store.MarkRead(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotExist) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"message": map[string]interface{}{
		"id":      message.ID,
		"read_at": message.ReadAt,
	}})
}
