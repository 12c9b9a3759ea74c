// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type userView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	Image         string    `json:"image,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

func newUserView(user *auth.User) userView {
	return userView{
		ID:            user.ID.String(),
		Email:         user.Email,
		Name:          user.Name,
		Image:         user.Image,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt,
	}
}

// sessionView never exposes a session id; clients see its fingerprint.
type sessionView struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Current   bool      `json:"current"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// bindJSON decodes the body into req. An empty body leaves req zero so the
// service reports which field is missing.
func bindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return oops.Code(auth.CodeMalformedRequest).Wrapf(err, "request body is not valid JSON")
	}
	return nil
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := bindJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}

	result, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	s.setSessionCookie(c, result.Session)
	c.JSON(http.StatusOK, gin.H{"user": newUserView(result.User)})
}

// logout without a cookie has nothing to end and answers 204.
func (s *Server) logout(c *gin.Context) {
	sessionID := s.sessionCookie(c)
	if sessionID == "" {
		c.Status(http.StatusNoContent)
		return
	}

	if err := s.auth.Logout(c.Request.Context(), sessionID); err != nil {
		s.abortWithError(c, err)
		return
	}
	s.clearSessionCookie(c)
	c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

func (s *Server) logoutAll(c *gin.Context) {
	subject, _ := SubjectFrom(c)

	revoked, err := s.auth.LogoutEverywhere(c.Request.Context(), subject.UserID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	s.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out of all sessions", "revoked": revoked})
}

// verifyEmail answers 204 when no token is given.
func (s *Server) verifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.Status(http.StatusNoContent)
		return
	}

	user, err := s.accounts.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "email verified", "user": newUserView(user)})
}

func (s *Server) resendVerification(c *gin.Context) {
	var req emailRequest
	if err := bindJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}

	if err := s.accounts.ResendVerification(c.Request.Context(), req.Email); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "if the account exists and is unverified, a new link has been sent"})
}

func (s *Server) forgotPassword(c *gin.Context) {
	var req emailRequest
	if err := bindJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}

	if err := s.accounts.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "if the account exists, a reset link has been sent"})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req passwordRequest
	if err := bindJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}

	if _, err := s.accounts.ResetPassword(c.Request.Context(), c.Query("token"), req.Password); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "password updated"})
}

func (s *Server) register(c *gin.Context) {
	var req credentialsRequest
	if err := bindJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}

	user, err := s.accounts.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": user.ID.String(), "email": user.Email})
}

func (s *Server) profile(c *gin.Context) {
	subject, _ := SubjectFrom(c)

	user, err := s.accounts.Profile(c.Request.Context(), subject.UserID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}

	subject, _ := SubjectFrom(c)
	if err := s.accounts.ChangePassword(c.Request.Context(), subject.UserID, req.OldPassword, req.NewPassword); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "password updated"})
}

func (s *Server) listSessions(c *gin.Context) {
	subject, _ := SubjectFrom(c)

	sessions, err := s.sessions.ListSessions(c.Request.Context(), subject.UserID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, sessionView{
			ID:        session.Fingerprint(),
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
			Current:   session.ID == subject.SessionID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}
