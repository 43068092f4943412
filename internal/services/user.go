package services

//go:generate mockgen -source=user.go -destination=mock_user.go -package=services
//go:generate mockgen -destination=mock_store.go -package=services github.com/sbilibin2017/user-service/internal/session Store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"golang.org/x/crypto/bcrypt"

	"github.com/sbilibin2017/user-service/internal/logger"
	"github.com/sbilibin2017/user-service/internal/models"
	"github.com/sbilibin2017/user-service/internal/repositories"
	"github.com/sbilibin2017/user-service/internal/session"
)

// Error variables
var (
	ErrDuplicateEntity = errors.New("username or email already registered")
	ErrNotFound        = errors.New("user not found")
	ErrInvalidInput    = errors.New("invalid input")
)

// ScopeRunner runs a block of store operations inside one session scope.
type ScopeRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context, s session.Store) error) error
}

// PasswordHasher encodes a plain password into the stored credential.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// EventWriter publishes user lifecycle events.
type EventWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	Cost int
}

// Hash implements PasswordHasher.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// UserService implements user CRUD on top of session scopes.
type UserService struct {
	runner   ScopeRunner
	hasher   PasswordHasher
	events   EventWriter
	validate *validator.Validate
	now      func() time.Time
}

// Option configures a UserService.
type Option func(*UserService)

// WithNow sets the clock used for event timestamps.
func WithNow(now func() time.Time) Option {
	return func(svc *UserService) { svc.now = now }
}

// NewUserService creates a new UserService instance. events may be nil, in
// which case no events are published.
func NewUserService(runner ScopeRunner, hasher PasswordHasher, events EventWriter, opts ...Option) *UserService {
	svc := &UserService{
		runner:   runner,
		hasher:   hasher,
		events:   events,
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create registers a new user. Username and email must not be taken.
func (svc *UserService) Create(ctx context.Context, in models.UserCreate) (*models.User, error) {
	if err := svc.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	hashed, err := svc.hash(in.Password)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = svc.runner.Run(ctx, func(ctx context.Context, s session.Store) error {
		existing, err := s.FindOne(ctx, repositories.Any(
			repositories.ByUsername(in.Username),
			repositories.ByEmail(in.Email),
		))
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateEntity
		}

		user = models.NewUser(in, hashed)
		return s.Insert(ctx, user)
	})
	if err != nil {
		return nil, svc.fail("create user", err, "username", in.Username, "email", in.Email)
	}

	svc.publish(ctx, models.UserCreated, user)
	return user, nil
}

// List returns up to limit users in insertion order, skipping the first offset.
func (svc *UserService) List(ctx context.Context, offset, limit int) ([]models.User, error) {
	var users []models.User
	err := svc.runner.Run(ctx, func(ctx context.Context, s session.Store) error {
		var err error
		users, err = s.FindMany(ctx, repositories.Everything(), offset, limit)
		return err
	})
	if err != nil {
		return nil, svc.fail("list users", err, "offset", offset, "limit", limit)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// Get returns the user with the given id.
func (svc *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	var user *models.User
	err := svc.runner.Run(ctx, func(ctx context.Context, s session.Store) error {
		var err error
		user, err = findByID(ctx, s, id)
		return err
	})
	if err != nil {
		return nil, svc.fail("get user", err, "id", id)
	}
	return user, nil
}

// Update merges the non-nil fields of in onto the user with the given id.
// A new username or email must not belong to another user.
func (svc *UserService) Update(ctx context.Context, id int64, in models.UserUpdate) (*models.User, error) {
	if err := svc.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var hashed string
	if in.Password != nil {
		var err error
		if hashed, err = svc.hash(*in.Password); err != nil {
			return nil, err
		}
	}

	var user *models.User
	changed := false
	err := svc.runner.Run(ctx, func(ctx context.Context, s session.Store) error {
		u, err := findByID(ctx, s, id)
		if err != nil {
			return err
		}
		user = u
		if in.IsEmpty() {
			return nil
		}

		if in.ChangesIdentity(u) {
			taken, err := s.FindOne(ctx, repositories.All(identityOf(in), repositories.NotID(id)))
			if err != nil {
				return err
			}
			if taken != nil {
				return ErrDuplicateEntity
			}
		}

		in.Apply(u)
		if hashed != "" {
			u.HashedPassword = hashed
		}
		if err := s.Update(ctx, u); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, svc.fail("update user", err, "id", id)
	}

	if changed {
		svc.publish(ctx, models.UserUpdated, user)
	}
	return user, nil
}

// Delete removes the user with the given id.
func (svc *UserService) Delete(ctx context.Context, id int64) error {
	var user *models.User
	err := svc.runner.Run(ctx, func(ctx context.Context, s session.Store) error {
		u, err := findByID(ctx, s, id)
		if err != nil {
			return err
		}
		user = u
		return s.Delete(ctx, u)
	})
	if err != nil {
		return svc.fail("delete user", err, "id", id)
	}

	svc.publish(ctx, models.UserDeleted, user)
	return nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// bcrypt rejects input longer than 72 bytes, while max counts runes.
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= n
	})
	return v
}

func (svc *UserService) hash(password string) (string, error) {
	hashed, err := svc.hasher.Hash(password)
	switch {
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case err != nil:
		logger.Log.Errorw("failed to hash password", "error", err)
		return "", err
	}
	return hashed, nil
}

func findByID(ctx context.Context, s session.Store, id int64) (*models.User, error) {
	user, err := s.FindOne(ctx, repositories.ByID(id))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// identityOf matches users holding any of the usernames or emails set in in.
func identityOf(in models.UserUpdate) repositories.Predicate {
	var preds []repositories.Predicate
	if in.Username != nil {
		preds = append(preds, repositories.ByUsername(*in.Username))
	}
	if in.Email != nil {
		preds = append(preds, repositories.ByEmail(*in.Email))
	}
	return repositories.Any(preds...)
}

// fail translates store errors into service errors and logs them.
func (svc *UserService) fail(op string, err error, keysAndValues ...any) error {
	switch {
	case errors.Is(err, ErrDuplicateEntity), errors.Is(err, ErrNotFound):
		logger.Log.Infow(op+" rejected", append(keysAndValues, "error", err)...)
		return err
	case errors.Is(err, session.ErrUniqueViolation):
		logger.Log.Infow(op+" rejected by unique constraint", append(keysAndValues, "error", err)...)
		return fmt.Errorf("%w: %w", ErrDuplicateEntity, err)
	case errors.Is(err, session.ErrEntityGone):
		logger.Log.Infow(op+" lost the row", append(keysAndValues, "error", err)...)
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, session.ErrInvalidPaging):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	logger.Log.Errorw("failed to "+op, append(keysAndValues, "error", err)...)
	return err
}

// publish writes a lifecycle event for u. Failures are logged only.
func (svc *UserService) publish(ctx context.Context, eventType string, u *models.User) {
	if svc.events == nil {
		return
	}

	event := models.UserEvent{
		EventID:   uuid.NewString(),
		Type:      eventType,
		UserID:    u.ID,
		Username:  u.Username,
		Timestamp: svc.now().Unix(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		logger.Log.Errorw("failed to encode user event", "type", eventType, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(u.ID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	if err := svc.events.WriteMessages(ctx, msg); err != nil {
		logger.Log.Errorw("failed to publish user event", "type", eventType, "user_id", u.ID, "error", err)
	}
}
