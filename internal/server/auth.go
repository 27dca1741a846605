package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/abdotop/cartpay/internal/db"
	"github.com/abdotop/cartpay/internal/domain"
	"github.com/abdotop/cartpay/internal/payment"
	"github.com/abdotop/cartpay/internal/utils"
	"github.com/golang-jwt/jwt/v4"
	"github.com/segmentio/ksuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenCookie = "token"
	tokenTTL    = 7 * 24 * time.Hour
)

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
}

// HandleRegister POST /api/v1/register
func (s *server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid-json", "Invalid JSON body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "request-validation-error", err.Error())
		return
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		writeAPIError(w, http.StatusBadRequest, "request-validation-error", err.Error())
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to hash password", "error", err)
		writeAPIError(w, http.StatusInternalServerError, "internal-server-error", "Failed to create user")
		return
	}

	user := domain.User{ID: ksuid.New().String(), Name: req.Name, Email: req.Email}
	if err := s.query.CreateUser(ctx, db.CreateUserParams{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: string(hashed),
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	}); err != nil {
		// unique email
		slog.InfoContext(ctx, "Failed to create user", "email", req.Email, "error", err)
		writeAPIError(w, http.StatusConflict, "email-taken", "An account with this email already exists")
		return
	}

	s.sendToken(w, r, user, http.StatusCreated)
}

// HandleLogin POST /api/v1/login
func (s *server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid-json", "Invalid JSON body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "request-validation-error", "Please enter email & password")
		return
	}

	// Rate limiting / lockout check
	if err := s.checkLockout(req.Email); err != nil {
		writeAPIError(w, http.StatusTooManyRequests, "too-many-attempts", "Too many attempts, try later")
		return
	}

	u, err := s.query.GetUserByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		slog.ErrorContext(ctx, "Failed to load user", "error", err)
		writeAPIError(w, http.StatusInternalServerError, "internal-server-error", "Failed to log in")
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		s.registerFail(req.Email)
		writeAPIError(w, http.StatusUnauthorized, "invalid-credentials", "Invalid email or password")
		return
	}
	s.resetFail(req.Email)

	s.sendToken(w, r, domain.User{ID: u.ID, Name: u.Name, Email: u.Email}, http.StatusOK)
}

// HandleLogout GET /api/v1/logout
func (s *server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: tokenCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	utils.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
}

// HandleMe GET /api/v1/me
func (s *server) HandleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := mustUser(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "user": u})
}

func (s *server) issueToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": s.now().Add(tokenTTL).Unix(),
	})
	return token.SignedString(s.jwtSecret)
}

func (s *server) sendToken(w http.ResponseWriter, r *http.Request, u domain.User, status int) {
	token, err := s.issueToken(u.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to generate access token", "error", err)
		writeAPIError(w, http.StatusInternalServerError, "internal-server-error", "Failed to generate access token")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  s.now().Add(tokenTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	utils.WriteJSON(w, status, authResponse{Success: true, Token: token, User: u})
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(tokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// AuthMiddleware accepts a JWT from the Authorization header or the token
// cookie and puts the user in the request context.
func (s *server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFromRequest(r)
		if tokenString == "" {
			writeAPIError(w, http.StatusUnauthorized, "unauthorized", "Login first to access this resource")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			writeAPIError(w, http.StatusUnauthorized, "invalid-token", "Invalid or expired token")
			return
		}
		userID, _ := claims["sub"].(string)

		ctx := r.Context()
		u, err := s.query.GetUserByID(ctx, userID)
		if err != nil {
			writeAPIError(w, http.StatusUnauthorized, "invalid-token", "User no longer exists")
			return
		}

		ctx = context.WithValue(ctx, userContextKey, domain.User{ID: u.ID, Name: u.Name, Email: u.Email})
		ctx = payment.WithToken(ctx, tokenString)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Rate limiter helpers
func (s *server) checkLockout(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.rl[email]
	if st == nil {
		return nil
	}
	if st.until.After(s.now()) {
		return errors.New("locked")
	}
	return nil
}

func (s *server) registerFail(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.rl[email]
	if st == nil {
		st = &lockout{}
		s.rl[email] = st
	}
	st.fails++
	if st.fails >= 5 {
		st.until = s.now().Add(15 * time.Minute)
		st.fails = 0 // reset after lockout period set
	}
}

func (s *server) resetFail(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rl, email)
}
