package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/collinmckay/vulnsuite/internal/auth"
	"github.com/collinmckay/vulnsuite/internal/database"
)

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username        string `json:"username"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Username == "" || req.Password == "" || req.ConfirmPassword == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "Passwords don't match")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	user := &database.User{
		Username:     req.Username,
		PasswordHash: hash,
		UserKey:      auth.NewUserKey(),
	}
	if err := s.db.CreateUser(user); err != nil {
		if errors.Is(err, database.ErrDuplicateName) {
			writeError(w, http.StatusBadRequest, "Username already exists")
			return
		}
		slog.Error("failed to create user", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":  "Account created successfully",
		"userKey":  user.UserKey,
		"username": user.Username,
	})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	user, err := s.db.GetUserByUsername(req.Username)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		// Same response for unknown user and wrong password.
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	if err := s.db.TouchLogin(user.Username); err != nil {
		slog.Warn("failed to record login time", "username", user.Username, "error", err)
	}

	token, err := s.auth.IssueToken(user.UserKey, user.Username)
	if err != nil {
		slog.Error("failed to issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Signed in successfully",
		"username": user.Username,
		"userKey":  user.UserKey,
		"token":    token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := userFrom(r)

	if err := s.db.TouchLogout(user.UserID); err != nil {
		slog.Warn("failed to record logout time", "username", user.Username, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Logged out successfully",
		"username": user.Username,
	})
}

func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := userFrom(r)

	// Tokens issued before this process started are refused so clients
	// re-login after a restart (matching the in-memory job registry,
	// which also starts empty).
	if s.auth.IssuedBeforeStart(user) {
		writeError(w, http.StatusUnauthorized, "Server has been restarted, please login again")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Token is valid",
		"user":    user,
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		UserKey         string `json:"userKey"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserKey == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "Passwords don't match")
		return
	}

	if _, err := s.db.GetUserByKey(req.UserKey); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user key")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	if err := s.db.UpdatePassword(req.UserKey, hash); err != nil {
		slog.Error("failed to update password", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}

func (s *Server) handleStorageUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := userFrom(r)

	refs, err := s.db.ListProjects(user.UserID)
	if err != nil {
		slog.Error("failed to list projects for usage", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute storage usage")
		return
	}

	paths := make([]string, 0, len(refs))
	for _, p := range refs {
		paths = append(paths, p.NessusFilePath)
	}

	writeJSON(w, http.StatusOK, s.files.ComputeUsage(user.UserID, paths))
}
