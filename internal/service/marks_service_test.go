package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"edu_portal_backend/internal/model"
	"edu_portal_backend/internal/repository"
	"edu_portal_backend/internal/repository/memory"
	"edu_portal_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func manualAttempt(id uint, studentID *uint, email string, assessment *model.Assessment, score *int) model.Attempt {
	a := model.Attempt{StudentID: studentID, StudentEmail: email, Score: score, Assessment: assessment}
	a.ID = id
	if assessment != nil {
		a.AssessmentID = assessment.ID
	}
	return a
}

func assessmentWithTotal(id uint, total int) *model.Assessment {
	a := &model.Assessment{TotalMarks: total}
	a.ID = id
	return a
}

func TestAggregateManualEmpty(t *testing.T) {
	assert.Empty(t, AggregateManual(nil))
	assert.Empty(t, AggregateManual([]model.Attempt{}))
	assert.Empty(t, AggregateAI(nil))
}

func TestAggregateManualScenario(t *testing.T) {
	rows := AggregateManual([]model.Attempt{
		manualAttempt(1, util.UintPtr(5), "ada@example.com", assessmentWithTotal(1, 10), util.IntPtr(8)),
	})

	require.Len(t, rows, 1)
	assert.Equal(t, "5", rows[0].Key)
	assert.Equal(t, 8, rows[0].TotalScore)
	assert.Equal(t, 10, rows[0].PossibleTotalMarks)
	require.NotNil(t, rows[0].PercentOfTotal)
	assert.Equal(t, 80.0, *rows[0].PercentOfTotal)
	assert.Equal(t, 8.0, rows[0].AvgScore)
}

func TestAggregateManualCountsAssessmentOnce(t *testing.T) {
	exam := assessmentWithTotal(3, 20)
	quiz := assessmentWithTotal(4, 5)
	sid := util.UintPtr(1)

	rows := AggregateManual([]model.Attempt{
		manualAttempt(1, sid, "", exam, util.IntPtr(10)),
		manualAttempt(2, sid, "", exam, util.IntPtr(15)),
		manualAttempt(3, sid, "", quiz, nil),
	})

	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].AttemptsCount)
	assert.Equal(t, 25, rows[0].TotalScore)
	assert.Equal(t, 25, rows[0].PossibleTotalMarks)
	assert.Equal(t, 100.0, *rows[0].PercentOfTotal)
	assert.Equal(t, 8.33, rows[0].AvgScore)
}

func TestAggregateManualZeroPossible(t *testing.T) {
	rows := AggregateManual([]model.Attempt{
		manualAttempt(1, nil, "x@example.com", assessmentWithTotal(1, 0), util.IntPtr(3)),
		manualAttempt(2, nil, "x@example.com", nil, nil),
	})

	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].PossibleTotalMarks)
	assert.Nil(t, rows[0].PercentOfTotal)
	assert.Equal(t, 1.5, rows[0].AvgScore)
}

func TestAggregateManualGrouping(t *testing.T) {
	a := assessmentWithTotal(1, 10)
	rows := AggregateManual([]model.Attempt{
		manualAttempt(10, nil, "bo@example.com", a, util.IntPtr(4)),
		manualAttempt(11, util.UintPtr(2), "cy@example.com", a, util.IntPtr(6)),
		manualAttempt(12, nil, "", a, util.IntPtr(1)),
		manualAttempt(13, nil, "bo@example.com", a, util.IntPtr(5)),
	})

	require.Len(t, rows, 3)
	assert.Equal(t, "bo@example.com", rows[0].Key)
	assert.Equal(t, 9, rows[0].TotalScore)
	assert.Equal(t, 10, rows[0].PossibleTotalMarks)
	assert.Equal(t, "2", rows[1].Key)
	assert.Equal(t, "u-12", rows[2].Key)
}

func TestAggregateAI(t *testing.T) {
	rows := AggregateAI([]model.AIAttempt{
		{UUIDBase: model.UUIDBase{ID: "a1"}, UserID: strPtr("u1"), CorrectCount: util.IntPtr(3), TotalPuzzles: util.IntPtr(5)},
		{UUIDBase: model.UUIDBase{ID: "a2"}, UserID: strPtr("u2"), CorrectCount: nil, TotalPuzzles: nil},
		{UUIDBase: model.UUIDBase{ID: "a3"}, UserID: strPtr("u1"), CorrectCount: util.IntPtr(4), TotalPuzzles: util.IntPtr(5)},
		{UUIDBase: model.UUIDBase{ID: "a4"}, CorrectCount: util.IntPtr(-2), TotalPuzzles: util.IntPtr(4), StudentName: "Guest"},
	})

	require.Len(t, rows, 3)
	assert.Equal(t, "u1", rows[0].Key)
	assert.Equal(t, 2, rows[0].AttemptsCount)
	assert.Equal(t, 7, rows[0].TotalCorrect)
	assert.Equal(t, 10, rows[0].TotalPossible)
	assert.Equal(t, 70.0, rows[0].AvgScorePct)

	assert.Equal(t, "u2", rows[1].Key)
	assert.Zero(t, rows[1].AvgScorePct)

	assert.Equal(t, "anon-a4", rows[2].Key)
	assert.Zero(t, rows[2].TotalCorrect)
	assert.Equal(t, "Guest", rows[2].StudentName)
}

func TestFilterAndSortSummaries(t *testing.T) {
	rows := []ManualSummary{
		{Key: "1", StudentEmail: "ada@example.com", TotalScore: 5},
		{Key: "2", StudentEmail: "bo@school.org", TotalScore: 9},
		{Key: "3", StudentEmail: "ADA.k@example.com", TotalScore: 5, PercentOfTotal: util.Float64Ptr(50)},
		{Key: "4", StudentEmail: "cy@example.com", TotalScore: 1},
	}

	filtered := FilterSummaries(rows, " Ada ")
	require.Len(t, filtered, 2)
	assert.Equal(t, "1", filtered[0].Key)
	assert.Equal(t, "3", filtered[1].Key)
	assert.Len(t, FilterSummaries(rows, ""), 4)

	sorted := append([]ManualSummary{}, rows...)
	require.NoError(t, SortSummaries(sorted, SortSpec{Key: "totalScore", Dir: "desc"}))
	assert.Equal(t, []string{"2", "1", "3", "4"}, summaryKeys(sorted))

	sorted = append([]ManualSummary{}, rows...)
	require.NoError(t, SortSummaries(sorted, SortSpec{Key: "totalScore"}))
	assert.Equal(t, []string{"4", "1", "3", "2"}, summaryKeys(sorted))

	// null percentages sort as zero
	sorted = append([]ManualSummary{}, rows...)
	require.NoError(t, SortSummaries(sorted, SortSpec{Key: "percent_of_total", Dir: "desc"}))
	assert.Equal(t, []string{"3", "1", "2", "4"}, summaryKeys(sorted))

	assert.ErrorIs(t, SortSummaries(sorted, SortSpec{Key: "name"}), util.ErrValidation)
	assert.ErrorIs(t, SortSummaries(sorted, SortSpec{Key: "totalScore", Dir: "up"}), util.ErrValidation)
}

func summaryKeys(rows []ManualSummary) []string {
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	return keys
}

type marksFixture struct {
	db   *memory.DB
	svc  *MarksService
	ada  model.Student
	exam *model.Assessment
}

func newMarksFixture(t *testing.T) *marksFixture {
	t.Helper()
	ctx := context.Background()
	db := memory.NewDB()
	assessments := memory.NewAssessmentStore(db)

	exam := &model.Assessment{Course: "Math", Level: "JSS1", Date: "2024-06-01", StartTime: "10:00", EndTime: "11:00", TotalMarks: 10}
	require.NoError(t, assessments.CreateAssessment(ctx, exam))

	f := &marksFixture{db: db, exam: exam}
	f.ada = db.AddStudent(model.Student{Email: "ada@example.com"})
	db.AddAttempt(model.Attempt{
		AssessmentID: exam.ID,
		StudentID:    util.UintPtr(f.ada.ID),
		StudentEmail: f.ada.Email,
		Status:       model.AttemptCompleted,
		StartedAt:    time.Now(),
		Score:        util.IntPtr(8),
	})

	profile := db.AddProfile(model.Profile{FullName: "Ada Obi", Email: "ada@example.com"})
	db.AddAIAttempt(model.AIAttempt{UserID: strPtr(profile.ID), CorrectCount: util.IntPtr(3), TotalPuzzles: util.IntPtr(5)})
	db.AddAIAttempt(model.AIAttempt{UserID: strPtr("ghost"), CorrectCount: util.IntPtr(1), TotalPuzzles: util.IntPtr(1)})

	identity := NewIdentityService(memory.NewStudentStore(db), nil, 0)
	f.svc = NewMarksService(memory.NewAttemptStore(db), memory.NewAIAttemptStore(db), identity)
	return f
}

func TestMarksReportKeepsSourcesApart(t *testing.T) {
	f := newMarksFixture(t)

	report, err := f.svc.Report(context.Background(), MarksQuery{AISort: "avgScorePct", AIDir: "asc"})
	require.NoError(t, err)

	require.Len(t, report.Manual, 1)
	require.NotNil(t, report.Manual[0].PercentOfTotal)
	assert.Equal(t, 80.0, *report.Manual[0].PercentOfTotal)

	require.Len(t, report.AI, 2)
	assert.Equal(t, 60.0, report.AI[0].AvgScorePct)
	assert.Equal(t, "Ada Obi", report.AI[0].StudentName)
	assert.Equal(t, "ada@example.com", report.AI[0].StudentEmail)
	assert.Equal(t, 100.0, report.AI[1].AvgScorePct)
	assert.Empty(t, report.AI[1].StudentName)
}

func TestMarksReportSearch(t *testing.T) {
	f := newMarksFixture(t)

	report, err := f.svc.Report(context.Background(), MarksQuery{Search: "ADA"})
	require.NoError(t, err)
	assert.Len(t, report.Manual, 1)
	require.Len(t, report.AI, 1)
	assert.Equal(t, "Ada Obi", report.AI[0].StudentName)
}

func TestMarksReportBadSort(t *testing.T) {
	f := newMarksFixture(t)
	_, err := f.svc.Report(context.Background(), MarksQuery{ManualSort: "height"})
	assert.ErrorIs(t, err, util.ErrValidation)
}

func TestMarksReportStorageFailure(t *testing.T) {
	f := newMarksFixture(t)
	f.db.FailWith(errors.New("timeout"))
	_, err := f.svc.Report(context.Background(), MarksQuery{})
	assert.ErrorIs(t, err, util.ErrStorage)
}

func TestStudentMarks(t *testing.T) {
	f := newMarksFixture(t)
	ctx := context.Background()

	profile := f.svc.Identity.ProfileByEmail(ctx, "ada@example.com")
	require.NotNil(t, profile)

	marks, err := f.svc.StudentMarks(ctx, model.StudentIdentity{
		StudentID: util.UintPtr(f.ada.ID),
		Email:     "ada@example.com",
		UserID:    profile.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, marks.Manual)
	require.NotNil(t, marks.AI)
	assert.Equal(t, 80.0, *marks.Manual.PercentOfTotal)
	assert.Equal(t, 60.0, marks.AI.AvgScorePct)
	assert.Equal(t, "Ada Obi", marks.AI.StudentName)

	none, err := f.svc.StudentMarks(ctx, model.StudentIdentity{Email: "nobody@example.com"})
	require.NoError(t, err)
	assert.Nil(t, none.Manual)
	assert.Nil(t, none.AI)

	_, err = f.svc.StudentMarks(ctx, model.StudentIdentity{})
	assert.ErrorIs(t, err, util.ErrInvalidStudent)
}

func TestStudentMarksFindsProfileByEmail(t *testing.T) {
	f := newMarksFixture(t)

	marks, err := f.svc.StudentMarks(context.Background(), model.StudentIdentity{Email: "ADA@example.com"})
	require.NoError(t, err)
	require.NotNil(t, marks.Manual)
	require.NotNil(t, marks.AI)
	assert.Equal(t, 1, marks.AI.AttemptsCount)
	assert.Equal(t, 60.0, marks.AI.AvgScorePct)
}

func TestStudentMarksUserIDOnlySeesNoManualAttempts(t *testing.T) {
	f := newMarksFixture(t)
	other := f.db.AddStudent(model.Student{Email: "bo@example.com"})
	f.db.AddAttempt(model.Attempt{
		AssessmentID: f.exam.ID,
		StudentID:    util.UintPtr(other.ID),
		StudentEmail: other.Email,
		Status:       model.AttemptCompleted,
		Score:        util.IntPtr(9),
	})

	marks, err := f.svc.StudentMarks(context.Background(), model.StudentIdentity{UserID: "profile-without-attempts"})
	require.NoError(t, err)
	assert.Nil(t, marks.Manual)
	assert.Nil(t, marks.AI)
}

func TestMarksReportKeepsTotalsOfDeletedAssessments(t *testing.T) {
	f := newMarksFixture(t)
	ctx := context.Background()

	before, err := f.svc.Report(ctx, MarksQuery{})
	require.NoError(t, err)
	require.Len(t, before.Manual, 1)
	require.NoError(t, memory.NewAssessmentStore(f.db).DeleteAssessment(ctx, f.exam.ID))

	after, err := f.svc.Report(ctx, MarksQuery{})
	require.NoError(t, err)
	require.Len(t, after.Manual, 1)
	assert.Equal(t, 8, after.Manual[0].TotalScore)
	assert.Equal(t, 10, after.Manual[0].PossibleTotalMarks)
	require.NotNil(t, after.Manual[0].PercentOfTotal)
	assert.Equal(t, 80.0, *after.Manual[0].PercentOfTotal)
}

func TestMarksReportFlagsTruncatedAISource(t *testing.T) {
	f := newMarksFixture(t)
	ctx := context.Background()

	report, err := f.svc.Report(ctx, MarksQuery{})
	require.NoError(t, err)
	assert.False(t, report.AITruncated)

	for i := 0; i < repository.AIAttemptListLimit; i++ {
		f.db.AddAIAttempt(model.AIAttempt{UserID: strPtr("bulk"), CorrectCount: util.IntPtr(1), TotalPuzzles: util.IntPtr(2)})
	}
	report, err = f.svc.Report(ctx, MarksQuery{})
	require.NoError(t, err)
	assert.True(t, report.AITruncated)

	attempts := 0
	for _, row := range report.AI {
		attempts += row.AttemptsCount
	}
	assert.Equal(t, repository.AIAttemptListLimit, attempts)
}
