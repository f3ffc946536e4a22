package sso

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// RegisterAuthRoutes mounts the browser facing registration and login flow
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {

	controller := NewAuthController(opts...)

	app.Get("/", controller.Home).SetName("home.get")

	app.Get(controller.Routes.Login, controller.LoginShow).SetName("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.VerifyEmail, controller.VerifyEmailShow).
		SetName("verify-email.get")
	app.Post(controller.Routes.VerifyEmail, controller.VerifyEmailPost).
		SetName("verify-email.post")

	app.Get(controller.Routes.CreatePassword, controller.CreatePasswordShow).
		SetName("create-password.get")
	app.Post(controller.Routes.CreatePassword, controller.CreatePasswordPost).
		SetName("create-password.post")

	protected := controller.Auther.ProtectedRoute(nil)

	app.Get(controller.Routes.Dashboard, controller.Dashboard, protected).SetName("dashboard.get")
	app.Get(controller.Routes.ViewInfo, controller.ViewInfo, protected).SetName("view-info.get")
	app.Get(controller.Routes.EditInfo, controller.EditInfoShow, protected).SetName("edit-info.get")
	app.Post(controller.Routes.EditInfo, controller.EditInfoPost, protected).SetName("edit-info.post")

	return controller
}

type AuthControllerRoutes struct {
	Login          string
	Logout         string
	Register       string
	VerifyEmail    string
	CreatePassword string
	Dashboard      string
	ViewInfo       string
	EditInfo       string
}

type AuthControllerViews struct {
	Login          string
	Register       string
	VerifyEmail    string
	CreatePassword string
	Dashboard      string
	ViewInfo       string
	EditInfo       string
}

type AuthController struct {
	Debug          bool
	Logger         Logger
	Repo           RepositoryManager
	Routes         *AuthControllerRoutes
	Views          *AuthControllerViews
	Auther         HTTPAuthenticator
	Images         ImageStore
	ErrorHandler   router.ErrorHandler
	RegisterUser   *RegisterUserHandler
	VerifyEmail    *VerifyEmailHandler
	CreatePassword *CreatePasswordHandler
	UpdateProfile  *UpdateProfileHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Login:          "/login",
			Logout:         "/logout",
			Register:       "/register",
			VerifyEmail:    "/verify_email",
			CreatePassword: "/create_password",
			Dashboard:      "/dashboard",
			ViewInfo:       "/view_info",
			EditInfo:       "/edit_info",
		},
		Views: &AuthControllerViews{
			Login:          "login",
			Register:       "register",
			VerifyEmail:    "verify_email",
			CreatePassword: "create_password",
			Dashboard:      "dashboard",
			ViewInfo:       "view_info",
			EditInfo:       "edit_info",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	if c.RegisterUser == nil {
		panic("Missing RegisterUserHandler in auth controller...")
	}

	if c.VerifyEmail == nil {
		c.VerifyEmail = NewVerifyEmailHandler(c.Repo, nil)
	}

	if c.CreatePassword == nil {
		c.CreatePassword = NewCreatePasswordHandler(c.Repo, nil)
	}

	if c.UpdateProfile == nil {
		c.UpdateProfile = NewUpdateProfileHandler(c.Repo, "")
	}

	return c
}

func (a *AuthController) Home(c router.Context) error {
	return c.Redirect(a.Routes.Login, http.StatusFound)
}

func (a *AuthController) render(c router.Context, status int, view string, data router.ViewContext) error {
	return c.Status(status).Render(view, ViewData(c, data))
}

// LoginRequest payload
type LoginRequest struct {
	NationalID  string `form:"national_id" json:"national_id"`
	Password    string `form:"password" json:"password"`
	RedirectURL string `form:"redirect_url" json:"redirect_url"`
}

// GetNationalID returns the identifier
func (r LoginRequest) GetNationalID() string {
	return strings.TrimSpace(r.NationalID)
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.NationalID,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginShow(c router.Context) error {
	return a.render(c, http.StatusOK, a.Views.Login, router.ViewContext{
		"errors":       nil,
		"record":       nil,
		"redirect_url": a.Auther.GetRedirect(c),
	})
}

func (a *AuthController) LoginPost(c router.Context) error {
	payload := new(LoginRequest)

	if err := c.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return a.ErrorHandler(c, err)
	}

	if payload.RedirectURL == "" {
		payload.RedirectURL = a.Auther.GetRedirect(c)
	}

	if err := payload.Validate(); err != nil {
		return a.render(c, http.StatusBadRequest, a.Views.Login, router.ViewContext{
			"record":       payload,
			"validation":   FormatValidationErrorToMap(err),
			"redirect_url": payload.RedirectURL,
		})
	}

	if a.Debug {
		a.Logger.Debug("auth login: %s", print.MaybePrettyJSON(map[string]any{
			"national_id":  payload.NationalID,
			"redirect_url": payload.RedirectURL,
		}))
	}

	token, err := a.Auther.Login(c, payload)
	if err != nil {
		if !IsError(err, ErrInvalidCredentials) && !IsError(err, ErrIncompleteAccount) {
			return a.ErrorHandler(c, err)
		}
		return a.render(c, http.StatusUnauthorized, a.Views.Login, router.ViewContext{
			"record":       payload,
			"errors":       map[string]string{"authentication": PublicMessage(err)},
			"redirect_url": payload.RedirectURL,
		})
	}

	if payload.RedirectURL != "" {
		target, err := a.Auther.RedirectWithToken(payload.RedirectURL, token)
		if err == nil {
			a.Logger.Info("login redirecting to relying party: %s", payload.RedirectURL)
			return c.Redirect(target, http.StatusSeeOther)
		}
		a.Logger.Warn("login redirect rejected %q: %v", payload.RedirectURL, err)
		return flash.WithSuccess(c, FlashMessage(FlashWarning, "the requested redirect target is not allowed")).
			Redirect(a.Routes.Dashboard, http.StatusSeeOther)
	}

	return c.Redirect(a.Routes.Dashboard, http.StatusSeeOther)
}

func (a *AuthController) LogOut(c router.Context) error {
	a.Auther.Logout(c)
	return flash.WithSuccess(c, FlashMessage(FlashSuccess, "you have been logged out")).
		Redirect(a.Routes.Login, http.StatusFound)
}

func (a *AuthController) RegistrationShow(c router.Context) error {
	return a.render(c, http.StatusOK, a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegistrationCreatePayload{},
	})
}

// RegistrationCreatePayload is the form paylaod
type RegistrationCreatePayload struct {
	FullName      string `form:"full_name" json:"full_name"`
	NationalID    string `form:"national_id" json:"national_id"`
	BirthDate     string `form:"birth_date" json:"birth_date"`
	Nationality   string `form:"nationality" json:"nationality"`
	Gender        string `form:"gender" json:"gender"`
	Qualification string `form:"qualification" json:"qualification"`
	BirthCity     string `form:"birth_city" json:"birth_city"`
	BirthCountry  string `form:"birth_country" json:"birth_country"`
	MaritalStatus string `form:"marital_status" json:"marital_status"`
	BloodType     string `form:"blood_type" json:"blood_type"`
	PhoneNumber   string `form:"phone_number" json:"phone_number"`
	Email         string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.NationalID, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.BirthDate, validation.Required, validation.Date(BirthDateLayout)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.PhoneNumber, validation.Required, validation.Length(3, 32)),
		validation.Field(&r.Gender, validation.Length(0, 32)),
		validation.Field(&r.BloodType, validation.Length(0, 8)),
	)
}

func (a *AuthController) RegistrationCreate(c router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := c.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload: %v", err)
		return a.render(c, http.StatusBadRequest, a.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Debug("register user validate payload: %v", err)
		return a.render(c, http.StatusBadRequest, a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("auth register: %s", print.MaybePrettyJSON(payload))
	}

	req := RegisterUserMessage{
		FullName:      payload.FullName,
		NationalID:    payload.NationalID,
		BirthDate:     payload.BirthDate,
		Nationality:   payload.Nationality,
		Gender:        payload.Gender,
		Qualification: payload.Qualification,
		BirthCity:     payload.BirthCity,
		BirthCountry:  payload.BirthCountry,
		MaritalStatus: payload.MaritalStatus,
		BloodType:     payload.BloodType,
		PhoneNumber:   payload.PhoneNumber,
		Email:         payload.Email,
	}

	profile, closeProfile, err := formAttachment(c, "profile_image")
	if err != nil {
		return a.ErrorHandler(c, err)
	}
	defer closeProfile()
	req.ProfileImage = profile

	fingerprint, closeFingerprint, err := formAttachment(c, "fingerprint_image")
	if err != nil {
		return a.ErrorHandler(c, err)
	}
	defer closeFingerprint()
	req.FingerprintImage = fingerprint

	var resp *RegisterUserResponse
	req.OnResponse = func(r *RegisterUserResponse) { resp = r }

	if err := a.RegisterUser.Execute(c.Context(), req); err != nil {
		if !isUserFacing(err) {
			a.Logger.Error("register user: %v", err)
			return a.ErrorHandler(c, err)
		}
		return a.render(c, HTTPStatus(err), a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"form": PublicMessage(err)},
		})
	}

	a.Auther.SetPendingRegistration(c, resp.User.ID)

	msg := FlashMessage(FlashSuccess, "a verification code was sent to "+resp.User.Email)
	if resp.DeliveryErr != nil {
		msg = FlashMessage(FlashWarning, "registration saved but we could not send the verification email")
	}

	return flash.WithSuccess(c, msg).Redirect(a.Routes.VerifyEmail, http.StatusSeeOther)
}

func formAttachment(c router.Context, field string) (*Attachment, func(), error) {
	noop := func() {}

	fh, err := c.FormFile(field)
	if err != nil || fh == nil || fh.Size == 0 {
		return nil, noop, nil
	}

	var file multipart.File
	if file, err = fh.Open(); err != nil {
		return nil, noop, err
	}

	return &Attachment{Filename: fh.Filename, Reader: file}, func() { file.Close() }, nil
}

// VerifyEmailPayload is the verification code form
type VerifyEmailPayload struct {
	Code string `form:"verification_code" json:"verification_code"`
}

func (r VerifyEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

func (a *AuthController) VerifyEmailShow(c router.Context) error {
	if _, ok := a.Auther.PendingRegistration(c); !ok {
		return c.Redirect(a.Routes.Register, http.StatusFound)
	}
	return a.render(c, http.StatusOK, a.Views.VerifyEmail, router.ViewContext{})
}

func (a *AuthController) VerifyEmailPost(c router.Context) error {
	id, ok := a.Auther.PendingRegistration(c)
	if !ok {
		return c.Redirect(a.Routes.Register, http.StatusSeeOther)
	}

	payload := new(VerifyEmailPayload)
	if err := c.Bind(payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.render(c, http.StatusBadRequest, a.Views.VerifyEmail, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	err := a.VerifyEmail.Execute(c.Context(), VerifyEmailMessage{
		UserID: id,
		Code:   strings.TrimSpace(payload.Code),
	})
	if err != nil {
		if IsError(err, ErrUserNotFound) {
			a.Auther.ClearPendingRegistration(c)
			return flash.WithError(c, FlashMessage(FlashError, "registration not found, please register again")).
				Redirect(a.Routes.Register, http.StatusSeeOther)
		}
		if !isUserFacing(err) {
			a.Logger.Error("verify email %s: %v", id, err)
			return a.ErrorHandler(c, err)
		}
		return a.render(c, HTTPStatus(err), a.Views.VerifyEmail, router.ViewContext{
			"errors": map[string]string{"form": PublicMessage(err)},
		})
	}

	return flash.WithSuccess(c, FlashMessage(FlashSuccess, "email verified, please create your password")).
		Redirect(a.Routes.CreatePassword, http.StatusSeeOther)
}

// CreatePasswordPayload is the password creation form
type CreatePasswordPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	BirthDate       string `form:"birth_date" json:"birth_date"`
}

func (r CreatePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.ConfirmPassword, validation.Required),
		validation.Field(&r.BirthDate, validation.Required, validation.Date(BirthDateLayout)),
	)
}

func (a *AuthController) CreatePasswordShow(c router.Context) error {
	if _, ok := a.Auther.PendingRegistration(c); !ok {
		return c.Redirect(a.Routes.Register, http.StatusFound)
	}
	return a.render(c, http.StatusOK, a.Views.CreatePassword, router.ViewContext{})
}

func (a *AuthController) CreatePasswordPost(c router.Context) error {
	id, ok := a.Auther.PendingRegistration(c)
	if !ok {
		return c.Redirect(a.Routes.Register, http.StatusSeeOther)
	}

	payload := new(CreatePasswordPayload)
	if err := c.Bind(payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.render(c, http.StatusBadRequest, a.Views.CreatePassword, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	err := a.CreatePassword.Execute(c.Context(), CreatePasswordMessage{
		UserID:          id,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
		BirthDate:       payload.BirthDate,
	})
	if err != nil {
		if !isUserFacing(err) {
			a.Logger.Error("create password %s: %v", id, err)
			return a.ErrorHandler(c, err)
		}
		return a.render(c, HTTPStatus(err), a.Views.CreatePassword, router.ViewContext{
			"errors": map[string]string{"form": PublicMessage(err)},
		})
	}

	a.Auther.ClearPendingRegistration(c)

	return flash.WithSuccess(c, FlashMessage(FlashSuccess, "password created, you can now log in")).
		Redirect(a.Routes.Login, http.StatusSeeOther)
}

func (a *AuthController) Dashboard(c router.Context) error {
	user, ok := CurrentUser(c, DefaultContextKey)
	if !ok {
		return a.ErrorHandler(c, ErrTokenInvalid)
	}
	return a.render(c, http.StatusOK, a.Views.Dashboard, router.ViewContext{
		"user": user,
	})
}

func (a *AuthController) ViewInfo(c router.Context) error {
	user, ok := CurrentUser(c, DefaultContextKey)
	if !ok {
		return a.ErrorHandler(c, ErrTokenInvalid)
	}
	return a.render(c, http.StatusOK, a.Views.ViewInfo, router.ViewContext{
		"user":    user,
		"profile": NewUserProfile(user, a.Images),
	})
}

// EditInfoPayload holds the fields a user may change after registration
type EditInfoPayload struct {
	Nationality   string `form:"nationality" json:"nationality"`
	Qualification string `form:"qualification" json:"qualification"`
	MaritalStatus string `form:"marital_status" json:"marital_status"`
	PhoneNumber   string `form:"phone_number" json:"phone_number"`
}

func (r EditInfoPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PhoneNumber, validation.Required, validation.Length(3, 32)),
	)
}

func (a *AuthController) EditInfoShow(c router.Context) error {
	user, ok := CurrentUser(c, DefaultContextKey)
	if !ok {
		return a.ErrorHandler(c, ErrTokenInvalid)
	}
	return a.render(c, http.StatusOK, a.Views.EditInfo, router.ViewContext{
		"user": user,
		"record": EditInfoPayload{
			Nationality:   user.Nationality,
			Qualification: user.Qualification,
			MaritalStatus: user.MaritalStatus,
			PhoneNumber:   user.PhoneNumber,
		},
	})
}

func (a *AuthController) EditInfoPost(c router.Context) error {
	user, ok := CurrentUser(c, DefaultContextKey)
	if !ok {
		return a.ErrorHandler(c, ErrTokenInvalid)
	}

	payload := new(EditInfoPayload)
	if err := c.Bind(payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.render(c, http.StatusBadRequest, a.Views.EditInfo, router.ViewContext{
			"user":       user,
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	err := a.UpdateProfile.Execute(c.Context(), UpdateProfileMessage{
		UserID: user.ID,
		Profile: ProfileUpdate{
			Nationality:   payload.Nationality,
			Qualification: payload.Qualification,
			MaritalStatus: payload.MaritalStatus,
			PhoneNumber:   payload.PhoneNumber,
		},
	})
	if err != nil {
		if !isUserFacing(err) {
			a.Logger.Error("update profile %s: %v", user.ID, err)
			return a.ErrorHandler(c, err)
		}
		return a.render(c, HTTPStatus(err), a.Views.EditInfo, router.ViewContext{
			"user":   user,
			"record": payload,
			"errors": map[string]string{"form": PublicMessage(err)},
		})
	}

	return flash.WithSuccess(c, FlashMessage(FlashSuccess, "your information was updated")).
		Redirect(a.Routes.ViewInfo, http.StatusSeeOther)
}

// isUserFacing reports errors that re-render the originating form
func isUserFacing(err error) bool {
	for _, target := range []*goerrors.Error{
		ErrDuplicateIdentity,
		ErrCodeMismatch,
		ErrBirthDateMismatch,
		ErrPasswordMismatch,
		ErrPasswordTooLong,
		ErrInvalidTransition,
		ErrNoEmptyString,
		ErrInvalidImage,
	} {
		if IsError(err, target) {
			return true
		}
	}
	return false
}

// FormatValidationErrorToMap flattens ozzo errors keyed by field name
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Status(HTTPStatus(err)).Render("errors/500", ViewData(c, router.ViewContext{
		"message": PublicMessage(err),
	}))
}
