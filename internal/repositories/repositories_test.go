package repositories_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/repositories"
	"github.com/Ramsey-B/clover/internal/testdb"
	"github.com/Ramsey-B/clover/pkg/catalog"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
)

type env struct {
	db         database.DB
	users      *repositories.UserRepository
	forwarders *repositories.ForwarderRepository
	engine     *merging.Engine
}

func setup(t *testing.T) *env {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := testdb.Postgres(t)
	logger := testdb.Logger()

	registry, err := catalog.Build(repositories.NewRelationRepository(db, logger))
	require.NoError(t, err)

	users := repositories.NewUserRepository(db, logger)
	forwarders := repositories.NewForwarderRepository(db, logger, 10)
	return &env{
		db:         db,
		users:      users,
		forwarders: forwarders,
		engine:     merging.NewEngine(logger, db, registry, users, forwarders),
	}
}

func (e *env) createUser(t *testing.T, name string) string {
	t.Helper()
	user := &models.User{Username: name, IsActive: true}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user.ID
}

func (e *env) column(t *testing.T, query string, args ...any) []string {
	t.Helper()
	out := []string{}
	require.NoError(t, e.db.SelectContext(context.Background(), &out, query, args...))
	return out
}

func TestUserRepository(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	id := e.createUser(t, "ada")

	user, err := e.users.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)
	assert.True(t, user.IsActive)
	assert.False(t, user.CreatedAt.IsZero())

	byName, err := e.users.GetByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)

	err = e.users.Create(ctx, &models.User{Username: "ada"})
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	require.NoError(t, e.users.Deactivate(ctx, id))
	user, err = e.users.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, user.IsActive)

	_, err = e.users.Get(ctx, uuid.New().String())
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	_, err = e.users.Get(ctx, "not-a-uuid")
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(e.users.Deactivate(ctx, uuid.New().String())))
}

func TestForwarderRepository(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	a := e.createUser(t, "a")
	b := e.createUser(t, "b")
	c := e.createUser(t, "c")

	require.NoError(t, e.forwarders.Forward(ctx, a, b))
	require.NoError(t, e.forwarders.Forward(ctx, b, c))
	require.NoError(t, e.forwarders.Forward(ctx, b, c))

	fw, err := e.forwarders.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, c, fw.TargetID)

	pointing, err := e.forwarders.ListByTarget(ctx, c)
	require.NoError(t, err)
	assert.Len(t, pointing, 2)

	res, err := e.forwarders.Resolve(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, c, res.ResolvedID)
	assert.Equal(t, []string{a, c}, res.Path)

	// reversing a merge drops the forwarder that would point at itself
	require.NoError(t, e.forwarders.Forward(ctx, c, a))
	_, err = e.forwarders.Get(ctx, a)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

	res, err = e.forwarders.Resolve(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, a, res.ResolvedID)

	// b is forwarded to a, so d lands on a directly
	d := e.createUser(t, "d")
	require.NoError(t, e.forwarders.Forward(ctx, d, b))
	fw, err = e.forwarders.Get(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, a, fw.TargetID)

	pointing, err = e.forwarders.ListByTarget(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, pointing)
}

func TestMergeEntities_Postgres(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	absorber := e.createUser(t, "absorber")
	absorbee := e.createUser(t, "absorbee")
	friend := e.createUser(t, "friend")
	group := uuid.New().String()
	subject := uuid.New().String()
	section := uuid.New().String()
	program := uuid.New().String()

	testdb.Exec(t, e.db, `INSERT INTO groups (id, name) VALUES ($1, 'admins')`, group)
	testdb.Exec(t, e.db, `INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2)`, absorbee, group)
	testdb.Exec(t, e.db, `INSERT INTO contact_infos (id, user_id) VALUES ($1, $2)`, uuid.New().String(), absorbee)
	testdb.Exec(t, e.db, `INSERT INTO student_profiles (id, user_id) VALUES ($1, $2), ($3, $4)`,
		uuid.New().String(), absorber, uuid.New().String(), absorbee)
	testdb.Exec(t, e.db, `INSERT INTO records (id, user_id, event, program_id) VALUES ($1, $2, 'confirmed', $5), ($3, $4, 'confirmed', $5)`,
		uuid.New().String(), absorber, uuid.New().String(), absorbee, program)
	testdb.Exec(t, e.db, `INSERT INTO class_subjects (id, title) VALUES ($1, 'Chemistry')`, subject)
	testdb.Exec(t, e.db, `INSERT INTO class_subject_teachers (class_subject_id, user_id) VALUES ($1, $2), ($1, $3)`, subject, absorber, absorbee)
	testdb.Exec(t, e.db, `INSERT INTO class_sections (id, class_subject_id) VALUES ($1, $2)`, section, subject)
	testdb.Exec(t, e.db, `INSERT INTO registrations (id, section_id, user_id) VALUES ($1, $2, $3)`, uuid.New().String(), section, absorbee)
	testdb.Exec(t, e.db, `INSERT INTO user_associations (from_user_id, to_user_id) VALUES ($1, $2), ($2, $1), ($1, $3), ($3, $1)`,
		absorbee, absorber, friend)

	report, err := e.engine.MergeEntities(ctx, models.MergeRequest{
		AbsorberID: absorber,
		AbsorbeeID: absorbee,
		Forward:    true,
		Deactivate: true,
	})
	require.NoError(t, err)
	assert.Len(t, report.Skipped, 2, "the second student profile and the duplicate record stay behind")

	assert.Equal(t, []string{absorber}, e.column(t, `SELECT user_id::text FROM contact_infos`))
	assert.ElementsMatch(t, []string{absorber, absorbee}, e.column(t, `SELECT user_id::text FROM student_profiles`))
	assert.ElementsMatch(t, []string{absorber, absorbee}, e.column(t, `SELECT user_id::text FROM records`))
	assert.Equal(t, []string{absorber}, e.column(t, `SELECT user_id::text FROM class_subject_teachers`))
	assert.Equal(t, []string{absorber}, e.column(t, `SELECT user_id::text FROM registrations`))
	assert.Equal(t, []string{group}, e.column(t, `SELECT group_id::text FROM user_groups WHERE user_id = $1`, absorber))
	assert.Equal(t, []string{friend}, e.column(t, `SELECT to_user_id::text FROM user_associations WHERE from_user_id = $1`, absorber))
	assert.Equal(t, []string{absorber}, e.column(t, `SELECT to_user_id::text FROM user_associations WHERE from_user_id = $1`, friend))
	assert.Empty(t, e.column(t, `SELECT to_user_id::text FROM user_associations WHERE from_user_id = $1`, absorbee))

	user, err := e.users.Get(ctx, absorbee)
	require.NoError(t, err)
	assert.False(t, user.IsActive)

	fw, err := e.forwarders.Get(ctx, absorbee)
	require.NoError(t, err)
	assert.Equal(t, absorber, fw.TargetID)

	t.Run("RepeatChangesNothing", func(t *testing.T) {
		again, err := e.engine.MergeEntities(ctx, models.MergeRequest{AbsorberID: absorber, AbsorbeeID: absorbee, Forward: true, Deactivate: true})
		require.NoError(t, err)
		assert.Equal(t, 0, again.Applied)
		assert.ElementsMatch(t, []string{absorber, absorbee}, e.column(t, `SELECT user_id::text FROM student_profiles`))
	})
}
