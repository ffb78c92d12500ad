package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
	"github.com/safespora/safespora-admin/internal/view"
)

const (
	landingPath = "/admin/dashboard"
	loginPath   = "/auth/login"
	resetPath   = "/auth/reset-password"

	invalidLoginMessage = "Invalid email or password"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	guard          rbac.Guard
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		guard:          guard,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.AllowPasswordResetPage())
		r.Get("/reset-password", h.showReset)
		r.Post("/reset-password", h.handleReset)
	})
}

// MountAPI registers the profile API under /api/admin/profile.
func (h *Handler) MountAPI(r chi.Router) {
	r.With(h.guard.AllowPasswordReset()).Post("/change-password", h.changePassword)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

type resetForm struct {
	Password        string `validate:"required,min=8,max=72"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

type resetPageData struct {
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/login.html", "Sign in", loginPageData{Errors: map[string]string{}})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	form := loginForm{
		Email:    shared.NormalizeEmail(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	errs := fieldErrors(h.validator.Struct(form))
	if len(errs) == 0 {
		p, err := h.service.Login(r.Context(), form.Email, form.Password)
		switch {
		case err == nil && sess != nil:
			if err := h.sessionManager.Renew(r.Context(), sess); err != nil {
				h.logger.Error("renew session", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			h.csrfManager.Rotate(sess)
			sess.Delete(rbac.LoginRecordedKey)
			sess.SetIdentity(p.ID.String(), p.Email)
			target := landingPath
			if p.PasswordResetRequired {
				target = resetPath
				sess.AddFlash(shared.FlashMessage{Kind: "info", Message: "Please choose a new password to continue"})
			} else {
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + p.FullName})
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		case err == nil:
			h.logger.Error("session missing during login")
			errs["general"] = invalidLoginMessage
		case errors.Is(err, shared.ErrInvalidCredentials):
			errs["general"] = invalidLoginMessage
		default:
			h.logger.Error("login", slog.Any("error", err))
			errs["general"] = invalidLoginMessage
		}
	} else {
		errs = map[string]string{"general": invalidLoginMessage}
	}
	form.Password = ""
	h.render(w, r, http.StatusBadRequest, "pages/login.html", "Sign in", loginPageData{Form: form, Errors: errs})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *Handler) showReset(w http.ResponseWriter, r *http.Request) {
	if p := rbac.PrincipalFromContext(r.Context()); p != nil && !p.PasswordResetRequired {
		http.Redirect(w, r, landingPath, http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "pages/reset_password.html", "Set a new password", resetPageData{Errors: map[string]string{}})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	if p == nil || !p.PasswordResetRequired {
		http.Redirect(w, r, landingPath, http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := resetForm{
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	errs := map[string]string{}
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				switch fe.Field() {
				case "Password":
					errs["password"] = "Password must be at least 8 characters"
				case "ConfirmPassword":
					errs["confirm_password"] = "Passwords do not match"
				}
			}
		}
	}
	if len(errs) == 0 {
		if err := h.service.ResetPassword(r.Context(), p, form.Password); err != nil {
			if errors.Is(err, httpx.ErrValidation) {
				errs["password"] = "Password must be at least 8 characters"
			} else {
				h.logger.Error("reset password", slog.Any("error", err))
				errs["general"] = "Could not update your password, please try again"
			}
		}
	}
	if len(errs) > 0 {
		h.render(w, r, http.StatusBadRequest, "pages/reset_password.html", "Set a new password", resetPageData{Errors: errs})
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Password updated"})
	}
	http.Redirect(w, r, landingPath, http.StatusSeeOther)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "current password and a new password of 8 to 72 characters are required")
		return
	}
	p := rbac.PrincipalFromContext(r.Context())
	if err := h.service.ChangePassword(r.Context(), p, req.CurrentPassword, req.NewPassword); err != nil {
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("change password", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password updated successfully"})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	viewData := view.NewTemplateData(r, h.csrfManager, title, data)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, name, viewData); err != nil {
		h.logger.Error("render auth page", slog.String("template", name), slog.Any("error", err))
	}
}

func fieldErrors(err error) map[string]string {
	errs := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			errs[fe.Field()] = fe.Error()
		}
	}
	return errs
}
