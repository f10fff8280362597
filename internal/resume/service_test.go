package resume

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"careerResume/internal/database"
	"careerResume/internal/database/dbtest"
	"careerResume/internal/errcode"
)

type fixture struct {
	db           *gorm.DB
	svc          *Service
	user         database.User
	stranger     database.User
	internship   database.Achievement
	project      database.Achievement
	course       database.Achievement
	goSkill      database.Skill
	sqlSkill     database.Skill
	foreignSkill database.Skill
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.New(t)
	f := fixture{db: db, svc: NewService(db, 0)}

	f.user = dbtest.User(t, db, "owner@example.com")
	f.stranger = dbtest.User(t, db, "stranger@example.com")

	f.internship = dbtest.Achievement(t, db, f.user.ID, database.AchievementInternship, "Intern", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), "Go")
	f.project = dbtest.Achievement(t, db, f.user.ID, database.AchievementProject, "Side project", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), "React")
	f.course = dbtest.Achievement(t, db, f.user.ID, database.AchievementCourse, "Databases", time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC))

	f.goSkill = dbtest.Skill(t, db, f.user.ID, "Go", database.ProficiencyExpert)
	f.sqlSkill = dbtest.Skill(t, db, f.user.ID, "SQL", database.ProficiencyIntermediate)
	f.foreignSkill = dbtest.Skill(t, db, f.stranger.ID, "Cobol", database.ProficiencyExpert)
	return f
}

func achievementLinks(t *testing.T, db *gorm.DB, resumeID uint) []database.ResumeAchievement {
	t.Helper()
	var links []database.ResumeAchievement
	require.NoError(t, db.Where("resume_id = ?", resumeID).Order("display_order").Find(&links).Error)
	return links
}

func skillLinks(t *testing.T, db *gorm.DB, resumeID uint) []database.ResumeSkill {
	t.Helper()
	var links []database.ResumeSkill
	require.NoError(t, db.Where("resume_id = ?", resumeID).Order("display_order").Find(&links).Error)
	return links
}

func TestGenerate_DefaultsSelectEverything(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.Generate(context.Background(), f.user.ID, GenerateParams{})
	require.NoError(t, err)

	assert.Equal(t, DefaultTitle, got.Resume.Title)
	assert.Equal(t, database.TemplateModern, got.Resume.Template)
	assert.False(t, got.Resume.IsDefault)
	assert.Equal(t, got.Summary, got.Resume.Summary)
	assert.Equal(t, Synthesize(f.user, got.Achievements, got.Skills), got.Summary)

	links := achievementLinks(t, f.db, got.Resume.ID)
	require.Len(t, links, 3)
	for i, want := range []uint{f.internship.ID, f.project.ID, f.course.ID} {
		assert.Equal(t, want, links[i].AchievementID)
		assert.Equal(t, i, links[i].DisplayOrder)
	}

	sLinks := skillLinks(t, f.db, got.Resume.ID)
	require.Len(t, sLinks, 2)
	assert.Equal(t, f.goSkill.ID, sLinks[0].SkillID)
	assert.Equal(t, 0, sLinks[0].DisplayOrder)
	assert.Equal(t, f.sqlSkill.ID, sLinks[1].SkillID)
	assert.Equal(t, 1, sLinks[1].DisplayOrder)
}

func TestGenerate_ExplicitIDsKeepSubmittedOrder(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.Generate(context.Background(), f.user.ID, GenerateParams{
		Title:          "  Backend  ",
		Template:       "Classic",
		AchievementIDs: []uint{f.course.ID, f.internship.ID, f.course.ID},
		SkillIDs:       []uint{f.sqlSkill.ID, f.goSkill.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, "Backend", got.Resume.Title)
	assert.Equal(t, database.TemplateClassic, got.Resume.Template)

	links := achievementLinks(t, f.db, got.Resume.ID)
	require.Len(t, links, 2)
	assert.Equal(t, f.course.ID, links[0].AchievementID)
	assert.Equal(t, f.internship.ID, links[1].AchievementID)

	sLinks := skillLinks(t, f.db, got.Resume.ID)
	require.Len(t, sLinks, 2)
	assert.Equal(t, f.sqlSkill.ID, sLinks[0].SkillID)
	assert.Equal(t, f.goSkill.ID, sLinks[1].SkillID)
}

func TestGenerate_EmptyListMeansAll(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.Generate(context.Background(), f.user.ID, GenerateParams{
		AchievementIDs: []uint{},
		SkillIDs:       []uint{},
	})
	require.NoError(t, err)
	assert.Len(t, got.Achievements, 3)
	assert.Len(t, got.Skills, 2)
}

func TestGenerate_DropsUnknownAndForeignIDs(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.Generate(context.Background(), f.user.ID, GenerateParams{
		AchievementIDs: []uint{9999, f.project.ID},
		SkillIDs:       []uint{f.foreignSkill.ID},
	})
	require.NoError(t, err)

	require.Len(t, got.Achievements, 1)
	assert.Equal(t, f.project.ID, got.Achievements[0].ID)
	assert.Empty(t, got.Skills)
	assert.Empty(t, skillLinks(t, f.db, got.Resume.ID))
	assert.NotContains(t, got.Summary, "Cobol")
}

func TestGenerate_SummaryMatchesWorkedExample(t *testing.T) {
	db := dbtest.New(t)
	user := dbtest.User(t, db, "a@example.com")
	dbtest.Achievement(t, db, user.ID, database.AchievementInternship, "i1", time.Time{})
	dbtest.Achievement(t, db, user.ID, database.AchievementInternship, "i2", time.Time{})
	dbtest.Achievement(t, db, user.ID, database.AchievementProject, "p1", time.Time{})
	dbtest.Skill(t, db, user.ID, "Go", database.ProficiencyExpert)
	dbtest.Skill(t, db, user.ID, "SQL", database.ProficiencyIntermediate)

	got, err := NewService(db, 0).Generate(context.Background(), user.ID, GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t,
		genericOpening+" Completed 2 professional internships with 1 hands-on project. Proficient in Go. "+closing,
		got.Summary,
	)
}

func TestGenerate_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, f.user.ID, GenerateParams{Template: "fancy"})
	assert.ErrorIs(t, err, errcode.ErrValidation)

	_, err = f.svc.Generate(ctx, 0, GenerateParams{})
	assert.ErrorIs(t, err, errcode.ErrUnauthorized)

	_, err = f.svc.Generate(ctx, 4242, GenerateParams{})
	assert.ErrorIs(t, err, errcode.ErrUnauthorized)

	var count int64
	require.NoError(t, f.db.Model(&database.Resume{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGenerate_RollsBackWhenLinkInsertFails(t *testing.T) {
	f := newFixture(t)

	boom := errors.New("disk full")
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_skill_links", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "resume_skills" {
			_ = tx.AddError(boom)
		}
	}))

	_, err := f.svc.Generate(context.Background(), f.user.ID, GenerateParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ErrStorage)
	assert.ErrorIs(t, err, boom)

	var resumes, aLinks, sLinks int64
	require.NoError(t, f.db.Model(&database.Resume{}).Count(&resumes).Error)
	require.NoError(t, f.db.Model(&database.ResumeAchievement{}).Count(&aLinks).Error)
	require.NoError(t, f.db.Model(&database.ResumeSkill{}).Count(&sLinks).Error)
	assert.Zero(t, resumes)
	assert.Zero(t, aLinks)
	assert.Zero(t, sLinks)
}

func TestGenerate_EnforcesResumeLimit(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.db, 1)
	ctx := context.Background()

	_, err := svc.Generate(ctx, f.user.ID, GenerateParams{})
	require.NoError(t, err)

	_, err = svc.Generate(ctx, f.user.ID, GenerateParams{})
	assert.ErrorIs(t, err, errcode.ErrConflict)

	_, err = svc.Generate(ctx, f.stranger.ID, GenerateParams{})
	assert.NoError(t, err)
}

func TestGetComplete_OrdersByDisplayOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gen, err := f.svc.Generate(ctx, f.user.ID, GenerateParams{
		AchievementIDs: []uint{f.project.ID, f.course.ID, f.internship.ID},
		SkillIDs:       []uint{f.sqlSkill.ID, f.goSkill.ID},
	})
	require.NoError(t, err)

	got, err := f.svc.GetComplete(ctx, gen.Resume.ID, f.user.ID)
	require.NoError(t, err)

	assert.Equal(t, gen.Resume.ID, got.Resume.ID)
	assert.Equal(t, f.user.Email, got.User.Email)
	assert.Empty(t, got.User.PasswordHash)

	var achievementIDs []uint
	for _, a := range got.Achievements {
		achievementIDs = append(achievementIDs, a.ID)
	}
	assert.Equal(t, []uint{f.project.ID, f.course.ID, f.internship.ID}, achievementIDs)

	require.Len(t, got.Skills, 2)
	assert.Equal(t, "SQL", got.Skills[0].Name)
	assert.Equal(t, "Go", got.Skills[1].Name)
}

func TestGetComplete_HidesOtherUsersResumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gen, err := f.svc.Generate(ctx, f.user.ID, GenerateParams{})
	require.NoError(t, err)

	_, err = f.svc.GetComplete(ctx, gen.Resume.ID, f.stranger.ID)
	assert.ErrorIs(t, err, errcode.ErrNotFound)

	_, err = f.svc.GetComplete(ctx, 12345, f.user.ID)
	assert.ErrorIs(t, err, errcode.ErrNotFound)
}

func TestLinkAchievement_AppendsOnceAndUnlinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gen, err := f.svc.Generate(ctx, f.user.ID, GenerateParams{AchievementIDs: []uint{f.project.ID}})
	require.NoError(t, err)

	require.NoError(t, f.svc.LinkAchievement(ctx, f.user.ID, gen.Resume.ID, f.course.ID))
	require.NoError(t, f.svc.LinkAchievement(ctx, f.user.ID, gen.Resume.ID, f.course.ID))

	links := achievementLinks(t, f.db, gen.Resume.ID)
	require.Len(t, links, 2)
	assert.Equal(t, f.course.ID, links[1].AchievementID)
	assert.Equal(t, 1, links[1].DisplayOrder)

	require.NoError(t, f.svc.UnlinkAchievement(ctx, f.user.ID, gen.Resume.ID, f.project.ID))
	require.NoError(t, f.svc.UnlinkAchievement(ctx, f.user.ID, gen.Resume.ID, f.project.ID))

	links = achievementLinks(t, f.db, gen.Resume.ID)
	require.Len(t, links, 1)
	assert.Equal(t, f.course.ID, links[0].AchievementID)
}

func TestLinkAchievement_RequiresOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gen, err := f.svc.Generate(ctx, f.user.ID, GenerateParams{})
	require.NoError(t, err)

	err = f.svc.LinkAchievement(ctx, f.stranger.ID, gen.Resume.ID, f.project.ID)
	assert.ErrorIs(t, err, errcode.ErrNotFound)

	foreign := dbtest.Achievement(t, f.db, f.stranger.ID, database.AchievementCourse, "theirs", time.Time{})
	err = f.svc.LinkAchievement(ctx, f.user.ID, gen.Resume.ID, foreign.ID)
	assert.ErrorIs(t, err, errcode.ErrNotFound)

	require.NoError(t, f.svc.UnlinkAchievement(ctx, f.stranger.ID, gen.Resume.ID, f.project.ID))
	assert.Len(t, achievementLinks(t, f.db, gen.Resume.ID), 3, "foreign unlink must not touch links")
}

func TestLinkSkill_AppendsAndUnlinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gen, err := f.svc.Generate(ctx, f.user.ID, GenerateParams{SkillIDs: []uint{f.goSkill.ID}})
	require.NoError(t, err)

	require.NoError(t, f.svc.LinkSkill(ctx, f.user.ID, gen.Resume.ID, f.sqlSkill.ID))
	assert.ErrorIs(t, f.svc.LinkSkill(ctx, f.user.ID, gen.Resume.ID, f.foreignSkill.ID), errcode.ErrNotFound)

	links := skillLinks(t, f.db, gen.Resume.ID)
	require.Len(t, links, 2)
	assert.Equal(t, f.sqlSkill.ID, links[1].SkillID)

	require.NoError(t, f.svc.UnlinkSkill(ctx, f.user.ID, gen.Resume.ID, f.goSkill.ID))
	links = skillLinks(t, f.db, gen.Resume.ID)
	require.Len(t, links, 1)
	assert.Equal(t, f.sqlSkill.ID, links[0].SkillID)
}

func TestUnlink_ScopedToOwnerAndContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gen, err := f.svc.Generate(ctx, f.user.ID, GenerateParams{})
	require.NoError(t, err)
	achievements := len(achievementLinks(t, f.db, gen.Resume.ID))
	skills := len(skillLinks(t, f.db, gen.Resume.ID))

	require.NoError(t, f.svc.UnlinkSkill(ctx, f.stranger.ID, gen.Resume.ID, f.goSkill.ID))
	assert.Len(t, skillLinks(t, f.db, gen.Resume.ID), skills)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err = f.svc.UnlinkAchievement(canceled, f.user.ID, gen.Resume.ID, f.project.ID)
	assert.ErrorIs(t, err, errcode.ErrStorage)
	assert.ErrorIs(t, err, context.Canceled)
	err = f.svc.UnlinkSkill(canceled, f.user.ID, gen.Resume.ID, f.goSkill.ID)
	assert.ErrorIs(t, err, errcode.ErrStorage)

	assert.Len(t, achievementLinks(t, f.db, gen.Resume.ID), achievements)
	assert.Len(t, skillLinks(t, f.db, gen.Resume.ID), skills)

	assert.ErrorIs(t, f.svc.UnlinkSkill(ctx, 0, gen.Resume.ID, f.goSkill.ID), errcode.ErrUnauthorized)
}

func TestUpdate_DefaultIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, f.user.ID, GenerateParams{Title: "first"})
	require.NoError(t, err)
	second, err := f.svc.Generate(ctx, f.user.ID, GenerateParams{Title: "second"})
	require.NoError(t, err)

	yes := true
	_, err = f.svc.Update(ctx, f.user.ID, first.Resume.ID, UpdateParams{IsDefault: &yes})
	require.NoError(t, err)
	updated, err := f.svc.Update(ctx, f.user.ID, second.Resume.ID, UpdateParams{IsDefault: &yes})
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)

	resumes, err := f.svc.List(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, resumes, 2)
	for _, r := range resumes {
		assert.Equal(t, r.ID == second.Resume.ID, r.IsDefault, r.Title)
	}
}

func TestUpdate_ValidatesFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gen, err := f.svc.Generate(ctx, f.user.ID, GenerateParams{})
	require.NoError(t, err)

	blank := "  "
	_, err = f.svc.Update(ctx, f.user.ID, gen.Resume.ID, UpdateParams{Title: &blank})
	assert.ErrorIs(t, err, errcode.ErrValidation)

	bad := "glossy"
	_, err = f.svc.Update(ctx, f.user.ID, gen.Resume.ID, UpdateParams{Template: &bad})
	assert.ErrorIs(t, err, errcode.ErrValidation)

	title, template, summary := "Renamed", "minimal", " Hand written. "
	got, err := f.svc.Update(ctx, f.user.ID, gen.Resume.ID, UpdateParams{Title: &title, Template: &template, Summary: &summary})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, database.TemplateMinimal, got.Template)
	assert.Equal(t, "Hand written.", got.Summary)

	_, err = f.svc.Update(ctx, f.stranger.ID, gen.Resume.ID, UpdateParams{Title: &title})
	assert.ErrorIs(t, err, errcode.ErrNotFound)
}

func TestDelete_RemovesLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gen, err := f.svc.Generate(ctx, f.user.ID, GenerateParams{})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, f.stranger.ID, gen.Resume.ID), errcode.ErrNotFound)
	require.NoError(t, f.svc.Delete(ctx, f.user.ID, gen.Resume.ID))

	assert.Empty(t, achievementLinks(t, f.db, gen.Resume.ID))
	assert.Empty(t, skillLinks(t, f.db, gen.Resume.ID))
	_, err = f.svc.GetComplete(ctx, gen.Resume.ID, f.user.ID)
	assert.ErrorIs(t, err, errcode.ErrNotFound)
}
