package sso

import (
	"context"
	"io"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Attachment is an uploaded file handed to the registration flow
type Attachment struct {
	Filename string
	Reader   io.Reader
}

type RegisterUserMessage struct {
	FullName         string `json:"full_name"`
	NationalID       string `json:"national_id"`
	BirthDate        string `json:"birth_date"`
	Nationality      string `json:"nationality"`
	Gender           string `json:"gender"`
	Qualification    string `json:"qualification"`
	BirthCity        string `json:"birth_city"`
	BirthCountry     string `json:"birth_country"`
	MaritalStatus    string `json:"marital_status"`
	BloodType        string `json:"blood_type"`
	PhoneNumber      string `json:"phone_number"`
	Email            string `json:"email"`
	ProfileImage     *Attachment
	FingerprintImage *Attachment
	UseHashid        bool
	OnResponse       func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	User *User
	// DeliveryErr is set when the verification email could not be sent,
	// the user record is kept regardless.
	DeliveryErr error
}

type RegisterUserOption func(*RegisterUserHandler)

// WithCodeGenerator replaces the verification code source
func WithCodeGenerator(gen CodeGenerator) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if gen != nil {
			h.codes = gen
		}
	}
}

func WithRegisterLogger(logger Logger) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithPhoneRegion sets the default region used to normalize phone numbers
func WithPhoneRegion(region string) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		h.phoneRegion = region
	}
}

type RegisterUserHandler struct {
	repo        RepositoryManager
	mailer      Mailer
	images      ImageStore
	codes       CodeGenerator
	logger      Logger
	phoneRegion string
}

func NewRegisterUserHandler(repo RepositoryManager, mailer Mailer, images ImageStore, opts ...RegisterUserOption) *RegisterUserHandler {
	h := &RegisterUserHandler{
		repo:   repo,
		mailer: mailer,
		images: images,
		codes:  NewVerificationCode,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.buildUser(event)
	if err != nil {
		return err
	}

	if existing, err := h.repo.Users().FindConflict(ctx, user.NationalID, user.Email, user.PhoneNumber); err == nil {
		return ErrDuplicateIdentity.Clone().WithMetadata(map[string]any{
			"field": conflictingField(existing, user),
		})
	} else if !IsError(err, ErrUserNotFound) {
		return err
	}

	code, err := h.codes()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}
	user.VerificationCode = code

	stored, err := h.storeImages(ctx, user, event)
	if err != nil {
		return err
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := h.repo.Users().InsertTx(ctx, tx, user)
		return err
	})

	if err != nil {
		h.discardImages(ctx, stored)

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	resp := &RegisterUserResponse{User: user}

	if err := h.mailer.SendVerificationCode(ctx, user.Email, user.FullName, code); err != nil {
		h.logger.Warn("verification email to %s failed, user %s kept: %v", user.Email, user.ID, err)
		resp.DeliveryErr = ErrEmailDeliveryFailed.Clone().WithMetadata(map[string]any{
			"email": user.Email,
			"cause": err.Error(),
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *RegisterUserHandler) buildUser(event RegisterUserMessage) (*User, error) {
	user := &User{
		FullName:      strings.TrimSpace(event.FullName),
		NationalID:    strings.TrimSpace(event.NationalID),
		Nationality:   event.Nationality,
		Gender:        event.Gender,
		Qualification: event.Qualification,
		BirthCity:     event.BirthCity,
		BirthCountry:  event.BirthCountry,
		MaritalStatus: event.MaritalStatus,
		BloodType:     event.BloodType,
		PhoneNumber:   NormalizePhoneNumber(event.PhoneNumber, h.phoneRegion),
		Email:         normalizeEmail(event.Email),
	}

	for field, value := range map[string]string{
		"national_id":  user.NationalID,
		"email":        user.Email,
		"phone_number": user.PhoneNumber,
	} {
		if value == "" {
			return nil, ErrNoEmptyString.Clone().WithMetadata(map[string]any{"field": field})
		}
	}

	if event.BirthDate != "" {
		birth, err := ParseBirthDate(event.BirthDate)
		if err != nil {
			return nil, goerrors.New("birth date must use the YYYY-MM-DD format", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"birth_date": event.BirthDate})
		}
		user.BirthDate = &birth
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(user.NationalID); err == nil {
			user.ID = id
		}
	}

	return user, nil
}

func (h *RegisterUserHandler) storeImages(ctx context.Context, user *User, event RegisterUserMessage) ([]string, error) {
	stored := []string{}
	if h.images == nil {
		return stored, nil
	}

	// uploads are keyed per request, never by user input, so a losing
	// duplicate only ever removes its own files
	key := strings.ReplaceAll(uuid.NewString(), "-", "")

	uploads := []struct {
		suffix string
		file   *Attachment
		target *string
	}{
		{suffix: "p", file: event.ProfileImage, target: &user.ProfileImage},
		{suffix: "h", file: event.FingerprintImage, target: &user.FingerprintImage},
	}

	for _, up := range uploads {
		if up.file == nil || up.file.Reader == nil {
			continue
		}

		name, err := h.images.Save(ctx, key+up.suffix, up.file.Reader)
		if err != nil {
			h.discardImages(ctx, stored)
			return nil, err
		}
		*up.target = name
		stored = append(stored, name)
	}

	return stored, nil
}

func (h *RegisterUserHandler) discardImages(ctx context.Context, names []string) {
	for _, name := range names {
		if err := h.images.Delete(ctx, name); err != nil {
			h.logger.Error("failed to remove image %s: %v", name, err)
		}
	}
}

func conflictingField(existing, candidate *User) string {
	switch {
	case existing.NationalID == candidate.NationalID:
		return "national_id"
	case existing.Email == candidate.Email:
		return "email"
	default:
		return "phone_number"
	}
}
