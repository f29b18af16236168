package compensation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/attendance"
	"github.com/imusici/accademia/core/compensation"
	"github.com/imusici/accademia/core/payment"
	"github.com/imusici/accademia/core/user"
	testutil "github.com/imusici/accademia/tests"
)

type fixture struct {
	env     *testutil.Env
	admin   user.User
	teacher user.User
	student user.User
}

func newFixture(t *testing.T) fixture {
	env := testutil.Setup(t)
	return fixture{
		env:     env,
		admin:   env.CreateUser(t, user.RoleAdmin, "Anna", "Bianchi"),
		teacher: env.CreateUser(t, user.RoleTeacher, "Marco", "Neri"),
		student: env.CreateUser(t, user.RoleStudent, "Giulia", "Verdi"),
	}
}

// record stores n lessons of the given status in March 2024, as the teacher.
func (f fixture) record(t *testing.T, course string, status attendance.Status, n int, makeup string) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.env.Attendance.Create(context.Background(), testutil.Principal(f.teacher, false), attendance.NewAttendance{
			CourseID:   course,
			StudentID:  f.student.ID,
			Date:       time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC).Format(core.DateLayout),
			Status:     status,
			MakeupDate: makeup,
		})
		require.NoError(t, err)
	}
}

func march() compensation.Request {
	return compensation.Request{From: "2024-03-01", To: "2024-03-31"}
}

func TestService_Calculate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "", attendance.StatusPresent, 10, "")
	f.record(t, "", attendance.StatusAbsent, 2, "")
	f.record(t, "", attendance.StatusJustified, 1, "2024-04-02")
	f.record(t, "", attendance.StatusJustified, 2, "")

	s, err := f.env.Compensation.Calculate(ctx, testutil.Principal(f.admin, true), f.teacher.ID, march())
	require.NoError(t, err)
	assert.Equal(t, 13, s.PayableUnits)
	assert.Equal(t, 30.0, s.Rate, "default rate")
	assert.Equal(t, 390.0, s.Total)
	assert.Equal(t, f.teacher.ID, s.TeacherID)

	t.Run("each course at its own rate", func(t *testing.T) {
		g := newFixture(t)
		admin := testutil.Principal(g.admin, true)
		g.record(t, "piano", attendance.StatusPresent, 2, "")
		g.record(t, "guitar", attendance.StatusAbsent, 2, "")
		_, err := g.env.Compensation.PutRate(ctx, admin, compensation.PutRate{TeacherID: g.teacher.ID, CourseID: "piano", Amount: 40})
		require.NoError(t, err)

		s, err := g.env.Compensation.Calculate(ctx, admin, g.teacher.ID, march())
		require.NoError(t, err)
		assert.Equal(t, 4, s.PayableUnits)
		assert.Equal(t, 40.0, s.Rate, "guitar falls back to the teacher's piano rate")
		assert.Equal(t, 160.0, s.Total)

		_, err = g.env.Compensation.PutRate(ctx, admin, compensation.PutRate{TeacherID: g.teacher.ID, Amount: 30})
		require.NoError(t, err)
		s, err = g.env.Compensation.Calculate(ctx, admin, g.teacher.ID, march())
		require.NoError(t, err)
		assert.Equal(t, 140.0, s.Total, "2 x 40 piano + 2 x 30 guitar")
		assert.Equal(t, 35.0, s.Rate)
		require.Len(t, s.Courses, 2)
		assert.Equal(t, "guitar", s.Courses[0].CourseID)
		assert.Equal(t, 30.0, s.Courses[0].Rate)
		assert.Equal(t, "piano", s.Courses[1].CourseID)
		assert.Equal(t, 40.0, s.Courses[1].Rate)
	})

	t.Run("window bounds are inclusive", func(t *testing.T) {
		s, err := f.env.Compensation.Calculate(ctx, testutil.Principal(f.admin, true), f.teacher.ID,
			compensation.Request{From: "2024-03-02", To: "2024-03-02"})
		require.NoError(t, err)
		assert.Equal(t, 3, s.Present+s.Absent+s.Justified)
	})

	t.Run("teacher sees their own", func(t *testing.T) {
		s, err := f.env.Compensation.Calculate(ctx, testutil.Principal(f.teacher, false), f.teacher.ID, march())
		require.NoError(t, err)
		assert.Equal(t, 390.0, s.Total)
	})

	t.Run("teacher cannot see others", func(t *testing.T) {
		other := f.env.CreateUser(t, user.RoleTeacher, "Paolo", "Gallo")
		_, err := f.env.Compensation.Calculate(ctx, testutil.Principal(other, false), f.teacher.ID, march())
		assert.Equal(t, core.ErrForbidden, err)
	})

	t.Run("students are refused", func(t *testing.T) {
		_, err := f.env.Compensation.Calculate(ctx, testutil.Principal(f.student, false), f.teacher.ID, march())
		assert.Equal(t, core.ErrForbidden, err)
	})

	t.Run("inverted window", func(t *testing.T) {
		_, err := f.env.Compensation.Calculate(ctx, testutil.Principal(f.admin, true), f.teacher.ID,
			compensation.Request{From: "2024-03-31", To: "2024-03-01"})
		assert.Equal(t, core.KindInvalidInput, core.KindOf(err))
	})

	t.Run("not a teacher", func(t *testing.T) {
		_, err := f.env.Compensation.Calculate(ctx, testutil.Principal(f.admin, true), f.student.ID, march())
		assert.Equal(t, core.KindInvalidInput, core.KindOf(err))
	})
}

func TestService_ResolveRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := testutil.Principal(f.admin, true)

	rate, err := f.env.Compensation.ResolveRate(ctx, f.teacher.ID, "piano")
	require.NoError(t, err)
	assert.Equal(t, 30.0, rate)

	_, err = f.env.Compensation.PutRate(ctx, admin, compensation.PutRate{TeacherID: f.teacher.ID, Amount: 35})
	require.NoError(t, err)
	rate, err = f.env.Compensation.ResolveRate(ctx, f.teacher.ID, "piano")
	require.NoError(t, err)
	assert.Equal(t, 35.0, rate, "teacher-wide rate")

	_, err = f.env.Compensation.PutRate(ctx, admin, compensation.PutRate{TeacherID: f.teacher.ID, CourseID: "piano", Amount: 40})
	require.NoError(t, err)
	rate, err = f.env.Compensation.ResolveRate(ctx, f.teacher.ID, "piano")
	require.NoError(t, err)
	assert.Equal(t, 40.0, rate, "course rate")

	rate, err = f.env.Compensation.ResolveRate(ctx, f.teacher.ID, "guitar")
	require.NoError(t, err)
	assert.Equal(t, 35.0, rate)

	t.Run("course rates only", func(t *testing.T) {
		other := f.env.CreateUser(t, user.RoleTeacher, "Paolo", "Gallo")
		_, err := f.env.Compensation.PutRate(ctx, admin, compensation.PutRate{TeacherID: other.ID, CourseID: "piano", Amount: 40})
		require.NoError(t, err)

		for _, course := range []string{"", "piano", "guitar"} {
			rate, err := f.env.Compensation.ResolveRate(ctx, other.ID, course)
			require.NoError(t, err)
			assert.Equal(t, 40.0, rate, "course %q uses the teacher's own rate", course)
		}
	})
}

func TestService_PutRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := testutil.Principal(f.admin, true)

	first, err := f.env.Compensation.PutRate(ctx, admin, compensation.PutRate{TeacherID: f.teacher.ID, CourseID: "piano", Amount: 40})
	require.NoError(t, err)
	second, err := f.env.Compensation.PutRate(ctx, admin, compensation.PutRate{TeacherID: f.teacher.ID, CourseID: "piano", Amount: 45})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "one rate per teacher and course")
	assert.Equal(t, 45.0, second.Amount)

	rates, err := f.env.Compensation.ListRates(ctx, testutil.Principal(f.teacher, false), "")
	require.NoError(t, err)
	require.Len(t, rates, 1)

	_, err = f.env.Compensation.PutRate(ctx, admin, compensation.PutRate{TeacherID: f.student.ID, Amount: 10})
	assert.Equal(t, core.KindInvalidInput, core.KindOf(err))
	_, err = f.env.Compensation.PutRate(ctx, testutil.Principal(f.admin, false), compensation.PutRate{TeacherID: f.teacher.ID, Amount: 10})
	assert.Equal(t, core.ErrForbidden, err, "password-only admin session")

	require.NoError(t, f.env.Compensation.DeleteRate(ctx, admin, first.ID))
	err = f.env.Compensation.DeleteRate(ctx, admin, first.ID)
	assert.Equal(t, compensation.ErrRateNotFound, err)
}

func TestService_Payout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := testutil.Principal(f.admin, true)
	f.env.Clock.Set(time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC))
	f.record(t, "piano", attendance.StatusPresent, 3, "")
	f.record(t, "piano", attendance.StatusAbsent, 1, "")

	_, err := f.env.Compensation.PutRate(ctx, admin, compensation.PutRate{TeacherID: f.teacher.ID, CourseID: "piano", Amount: 40})
	require.NoError(t, err)

	req := march()
	req.CourseID = "piano"
	p, s, err := f.env.Compensation.Payout(ctx, admin, f.teacher.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 4, s.PayableUnits)
	assert.Equal(t, payment.TypeTeacherCompensation, p.Type)
	assert.Equal(t, 160.0, p.Amount)
	assert.Equal(t, f.teacher.ID, p.UserID)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, time.Date(2024, 4, 2, 23, 59, 59, 0, time.UTC), p.DueDate)

	t.Run("nothing to pay", func(t *testing.T) {
		_, _, err := f.env.Compensation.Payout(ctx, admin, f.teacher.ID, compensation.Request{From: "2024-05-01", To: "2024-05-31"})
		assert.Equal(t, core.KindInvalidInput, core.KindOf(err))
	})

	t.Run("teachers cannot pay themselves", func(t *testing.T) {
		_, _, err := f.env.Compensation.Payout(ctx, testutil.Principal(f.teacher, false), f.teacher.ID, req)
		assert.Equal(t, core.ErrForbidden, err)
	})
}
