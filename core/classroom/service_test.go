package classroom_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/classroom"
	"github.com/trezcool/pueriangeli/core/user"
	emailsvc "github.com/trezcool/pueriangeli/services/email"
	logsvc "github.com/trezcool/pueriangeli/services/logger"
	inmemdb "github.com/trezcool/pueriangeli/storage/database/inmem"
	"github.com/trezcool/pueriangeli/tests"
)

func setup(t *testing.T) (classroom.Service, classroom.Repository, user.Repository) {
	t.Helper()

	conf := core.NewTestConfig()
	db, err := inmemdb.Open()
	require.NoError(t, err)

	usrRepo := inmemdb.NewUserRepository(db)
	classRepo := inmemdb.NewClassroomRepository(db)
	usrSvc := user.NewServiceMock(usrRepo, emailsvc.NewConsoleServiceMock(conf, logsvc.NewNopLogger()), conf)
	return classroom.NewService(classRepo, usrSvc), classRepo, usrRepo
}

func fieldErrors(t *testing.T, err error) []core.FieldError {
	t.Helper()

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Fields
}

func Test_service_capacity(t *testing.T) {
	svc, classRepo, usrRepo := setup(t)
	ctx := context.Background()

	parent := testutil.CreateUser(t, usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	cls := testutil.CreateClass(t, classRepo, "6eme A", "6", "", 2)
	other := testutil.CreateClass(t, classRepo, "6eme B", "6", "", 0) // unlimited

	var students []classroom.Student
	for _, m := range []string{"M001", "M002", "M003"} {
		s, err := svc.CreateStudent(ctx, classroom.NewStudent{FirstName: "Kid", LastName: m, Matricule: m, ParentID: parent.ID})
		require.NoError(t, err)
		students = append(students, s)
	}

	for _, s := range students[:2] {
		_, err := svc.AssignStudent(ctx, s.ID, cls.ID)
		require.NoError(t, err)
	}
	_, err := svc.AssignStudent(ctx, students[2].ID, cls.ID)
	assert.Equal(t, []core.FieldError{{Field: "class_id", Error: classroom.ErrClassFull.Error()}}, fieldErrors(t, err))

	// reassigning an enrolled student does not count twice
	_, err = svc.AssignStudent(ctx, students[0].ID, cls.ID)
	assert.NoError(t, err)

	one := 1
	_, err = svc.UpdateClass(ctx, cls.ID, classroom.UpdateClass{Capacity: &one})
	assert.Equal(t, "capacity", fieldErrors(t, err)[0].Field)

	got, err := svc.GetClass(ctx, cls.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{students[0].ID, students[1].ID}, got.StudentIDs)

	// moving a student frees its seat
	_, err = svc.AssignStudent(ctx, students[1].ID, other.ID)
	require.NoError(t, err)
	_, err = svc.AssignStudent(ctx, students[2].ID, cls.ID)
	assert.NoError(t, err)

	s, err := svc.RemoveStudent(ctx, students[2].ID)
	require.NoError(t, err)
	assert.Empty(t, s.ClassID)
}

func Test_service_AssignStudent_concurrent(t *testing.T) {
	svc, classRepo, usrRepo := setup(t)
	ctx := context.Background()

	parent := testutil.CreateUser(t, usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	cls := testutil.CreateClass(t, classRepo, "1ere A", "1", "", 1)

	const n = 50
	students := make([]classroom.Student, n)
	for i := range students {
		m := fmt.Sprintf("C%03d", i)
		students[i] = testutil.CreateStudent(t, classRepo, "Kid", m, m, "", parent.ID)
	}

	var (
		wg       sync.WaitGroup
		enrolled int32
		full     int32
	)
	start := make(chan struct{})
	for _, s := range students {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			_, err := svc.AssignStudent(ctx, id, cls.ID)
			if err == nil {
				atomic.AddInt32(&enrolled, 1)
				return
			}
			var verr *core.ValidationError
			if assert.ErrorAs(t, err, &verr) && assert.Equal(t, classroom.ErrClassFull, verr.Err) {
				atomic.AddInt32(&full, 1)
			}
		}(s.ID)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, enrolled)
	assert.EqualValues(t, n-1, full)

	got, err := svc.GetClass(ctx, cls.ID)
	require.NoError(t, err)
	assert.Len(t, got.StudentIDs, 1)
}

func Test_service_CreateStudent_full(t *testing.T) {
	svc, classRepo, usrRepo := setup(t)
	ctx := context.Background()

	parent := testutil.CreateUser(t, usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	cls := testutil.CreateClass(t, classRepo, "1ere B", "1", "", 1)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(m string) {
			defer wg.Done()
			_, _ = svc.CreateStudent(ctx, classroom.NewStudent{FirstName: "Kid", LastName: m, Matricule: m, ClassID: cls.ID, ParentID: parent.ID})
		}(fmt.Sprintf("F%03d", i))
	}
	wg.Wait()

	got, err := svc.GetClass(ctx, cls.ID)
	require.NoError(t, err)
	assert.Len(t, got.StudentIDs, 1)

	// students refused a seat are not left behind without a class
	all, err := svc.QueryStudents(ctx, classroom.StudentFilter{ParentID: parent.ID})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.CreateStudent(ctx, classroom.NewStudent{FirstName: "Kid", LastName: "Late", Matricule: "LATE", ClassID: cls.ID})
	assert.Equal(t, []core.FieldError{{Field: "class_id", Error: classroom.ErrClassFull.Error()}}, fieldErrors(t, err))
}

func Test_service_QueryClasses_students(t *testing.T) {
	svc, classRepo, usrRepo := setup(t)
	ctx := context.Background()

	parent := testutil.CreateUser(t, usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	a := testutil.CreateClass(t, classRepo, "2eme A", "2", "", 0)
	b := testutil.CreateClass(t, classRepo, "2eme B", "2", "", 0)
	empty := testutil.CreateClass(t, classRepo, "2eme C", "2", "", 0)

	s1 := testutil.CreateStudent(t, classRepo, "Kid", "One", "Q001", a.ID, parent.ID)
	s2 := testutil.CreateStudent(t, classRepo, "Kid", "Two", "Q002", a.ID, parent.ID)
	s3 := testutil.CreateStudent(t, classRepo, "Kid", "Three", "Q003", b.ID, parent.ID)
	testutil.CreateStudent(t, classRepo, "Kid", "Four", "Q004", "", parent.ID)

	classes, err := svc.QueryClasses(ctx, "2eme")
	require.NoError(t, err)
	require.Len(t, classes, 3)

	byID := make(map[string][]string)
	for _, c := range classes {
		byID[c.ID] = c.StudentIDs
	}
	assert.ElementsMatch(t, []string{s1.ID, s2.ID}, byID[a.ID])
	assert.Equal(t, []string{s3.ID}, byID[b.ID])
	assert.NotNil(t, byID[empty.ID])
	assert.Empty(t, byID[empty.ID])
}

func Test_service_checkUser(t *testing.T) {
	svc, _, usrRepo := setup(t)
	ctx := context.Background()

	parent := testutil.CreateUser(t, usrRepo, "Awe", "Mbuyi", "awe@test.cd", "", user.RoleParent, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "Lumumba", "teacher@test.cd", "", user.RoleTeacher, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "Kabila", "admin@test.cd", "", user.RoleAdmin, true)

	tests := []struct {
		name      string
		teacherID string
		wantErr   bool
	}{
		{name: "no teacher", teacherID: ""},
		{name: "teacher", teacherID: teacher.ID},
		{name: "admins may teach", teacherID: admin.ID},
		{name: "parent", teacherID: parent.ID, wantErr: true},
		{name: "unknown user", teacherID: "c0ffee00-0000-4000-8000-000000000000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateClass(ctx, classroom.NewClass{Name: tt.name, Level: "6", TeacherID: tt.teacherID, AcademicYear: "2025-2026"})
			if tt.wantErr {
				assert.Equal(t, []core.FieldError{{Field: "teacher_id", Error: "user is not a teacher"}}, fieldErrors(t, err))
				return
			}
			assert.NoError(t, err)
		})
	}
}
