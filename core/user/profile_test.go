package user_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/user"
	emailsvc "github.com/trezcool/pueriangeli/services/email"
	logsvc "github.com/trezcool/pueriangeli/services/logger"
	inmemdb "github.com/trezcool/pueriangeli/storage/database/inmem"
	"github.com/trezcool/pueriangeli/tests"
)

func TestParentProfile_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	tests := []struct {
		name    string
		in      user.ParentProfile
		wantSex string
		wantErr bool
	}{
		{name: "empty", in: user.ParentProfile{}},
		{name: "sex spelled out", in: user.ParentProfile{Sex: " Masculin "}, wantSex: "M"},
		{name: "sex letter", in: user.ParentProfile{Sex: "f"}, wantSex: "F"},
		{name: "unknown sex", in: user.ParentProfile{Sex: "X"}, wantSex: "X", wantErr: true},
		{name: "diploma year", in: user.ParentProfile{DiplomaYear: "20l0"}, wantErr: true},
		{name: "photo", in: user.ParentProfile{PhotoURL: "not a url"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pp := tt.in
			err := pp.Validate(validate)
			assert.Equal(t, tt.wantErr, err != nil, err)
			assert.Equal(t, tt.wantSex, pp.Sex)
		})
	}
}

func TestService_UpdateParentProfile(t *testing.T) {
	conf := core.NewTestConfig()
	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewUserRepository(db)
	svc := user.NewServiceMock(repo, emailsvc.NewConsoleServiceMock(conf, logsvc.NewNopLogger()), conf)

	parent := testutil.CreateUser(t, repo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	teacher := testutil.CreateUser(t, repo, "Teacher", "Lumumba", "teacher@test.cd", "", user.RoleTeacher, true)

	t.Run("parent", func(t *testing.T) {
		pp := user.ParentProfile{Code: "PA_1", EmergencyName: "Jean Mbuyi"}
		usr, err := svc.UpdateParentProfile(t.Context(), parent.ID, pp)
		require.NoError(t, err)
		assert.True(t, usr.UpdatedAt.After(parent.UpdatedAt) || usr.UpdatedAt.Equal(parent.UpdatedAt))

		stored, err := svc.GetByID(t.Context(), parent.ID)
		require.NoError(t, err)
		if assert.NotNil(t, stored.ParentProfile) {
			assert.Equal(t, pp, *stored.ParentProfile)
		}
	})

	t.Run("not a parent", func(t *testing.T) {
		_, err := svc.UpdateParentProfile(t.Context(), teacher.ID, user.ParentProfile{Code: "PA_2"})
		verr, ok := core.AsValidationError(err)
		require.True(t, ok, err)
		assert.Equal(t, user.ErrNotParent, verr.Err)

		stored, err := svc.GetByID(t.Context(), teacher.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.ParentProfile)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.UpdateParentProfile(t.Context(), "lol", user.ParentProfile{})
		assert.ErrorIs(t, err, user.ErrNotFound)
	})
}
