package repositories

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const usersTable = "users"

var userStruct = database.NewStruct(new(models.User))

// UserRepository handles database operations for users
type UserRepository struct {
	*Repository
}

// NewUserRepository creates a new user repository
func NewUserRepository(db database.DB, logger ectologger.Logger) *UserRepository {
	return &UserRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts a user, generating its id when empty.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	ctx, span := tracing.StartSpan(ctx, "UserRepository.Create")
	defer span.End()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(usersTable).
		Cols("id", "username", "email", "first_name", "last_name", "is_active", "created_at", "updated_at").
		Values(user.ID, user.Username, user.Email, user.FirstName, user.LastName, user.IsActive,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	if err := r.Exec(ctx).GetContext(ctx, user, query, args...); err != nil {
		err = database.TranslateError(err)
		if database.IsUniqueViolation(err) {
			return httperror.NewHTTPErrorf(http.StatusConflict, "user %s already exists", user.Username)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("user_id", user.ID).Error("failed to create user")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create user")
	}

	r.logger.WithContext(ctx).WithField("user_id", user.ID).Debugf("Created %s", usersTable)
	return nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "UserRepository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, NotFound("user %s does not exist", id)
	}

	sb := userStruct.SelectFrom(usersTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var user models.User
	err := r.Exec(ctx).GetContext(ctx, &user, query, args...)
	if database.IsNoRows(err) {
		return nil, NotFound("user %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("user_id", id).Error("failed to get user")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get user")
	}

	return &user, nil
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "UserRepository.GetByUsername")
	defer span.End()

	sb := userStruct.SelectFrom(usersTable)
	sb.Where(sb.Equal("username", username))

	query, args := sb.Build()
	var user models.User
	err := r.Exec(ctx).GetContext(ctx, &user, query, args...)
	if database.IsNoRows(err) {
		return nil, NotFound("user '%s' does not exist", username)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("username", username).Error("failed to get user by username")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get user by username")
	}

	return &user, nil
}

// Deactivate marks a user inactive. Deactivating an inactive user succeeds.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "UserRepository.Deactivate")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(usersTable).
		Set(
			ub.Assign("is_active", false),
			ub.Assign("updated_at", time.Now().UTC()),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.Exec(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("user_id", id).Error("failed to deactivate user")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to deactivate user")
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return NotFound("user %s does not exist", id)
	}

	r.logger.WithContext(ctx).WithField("user_id", id).Debug("Deactivated user")
	return nil
}
