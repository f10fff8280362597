package api

import (
	"time"

	"careerResume/internal/database"
	"careerResume/internal/resume"
)

const dateLayout = "2006-01-02"

type achievementResponse struct {
	ID             uint       `json:"id"`
	Type           string     `json:"type"`
	Title          string     `json:"title"`
	Organization   string     `json:"organization"`
	Description    string     `json:"description"`
	StartDate      *string    `json:"start_date"`
	EndDate        *string    `json:"end_date"`
	Status         string     `json:"status"`
	CertificateKey string     `json:"certificate_key,omitempty"`
	Verified       bool       `json:"verified"`
	SkillsUsed     []string   `json:"skills_used"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

type skillResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Proficiency string    `json:"proficiency_level"`
	CreatedAt   time.Time `json:"created_at"`
}

type resumeResponse struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Template  string    `json:"template_type"`
	Summary   string    `json:"summary"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type profileResponse struct {
	ID                uint      `json:"id"`
	Email             string    `json:"email"`
	FullName          string    `json:"full_name"`
	Phone             string    `json:"phone"`
	Location          string    `json:"location"`
	Bio               string    `json:"bio"`
	ProfilePictureURL string    `json:"profile_picture_url"`
	CreatedAt         time.Time `json:"created_at"`
}

type completeResumeResponse struct {
	Resume       resumeResponse        `json:"resume"`
	User         profileResponse       `json:"user"`
	Achievements []achievementResponse `json:"achievements"`
	Skills       []skillResponse       `json:"skills"`
}

type generatedResumeResponse struct {
	Resume       resumeResponse `json:"resume"`
	Summary      string         `json:"summary"`
	Achievements []uint         `json:"achievement_ids"`
	Skills       []uint         `json:"skill_ids"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func newAchievementResponse(a database.Achievement) achievementResponse {
	tags := []string(a.SkillsUsed)
	if tags == nil {
		tags = []string{}
	}
	resp := achievementResponse{
		ID:             a.ID,
		Type:           string(a.Type),
		Title:          a.Title,
		Organization:   a.Organization,
		Description:    a.Description,
		StartDate:      formatDate(a.StartDate),
		EndDate:        formatDate(a.EndDate),
		Status:         a.Status,
		CertificateKey: a.CertificateKey,
		Verified:       a.Verified,
		SkillsUsed:     tags,
		CreatedAt:      a.CreatedAt,
	}
	if !a.UpdatedAt.IsZero() {
		updated := a.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

func newAchievementResponses(items []database.Achievement) []achievementResponse {
	out := make([]achievementResponse, 0, len(items))
	for _, a := range items {
		out = append(out, newAchievementResponse(a))
	}
	return out
}

func newSkillResponse(s database.Skill) skillResponse {
	return skillResponse{
		ID:          s.ID,
		Name:        s.Name,
		Proficiency: string(s.Proficiency),
		CreatedAt:   s.CreatedAt,
	}
}

func newSkillResponses(items []database.Skill) []skillResponse {
	out := make([]skillResponse, 0, len(items))
	for _, s := range items {
		out = append(out, newSkillResponse(s))
	}
	return out
}

func newResumeResponse(r database.Resume) resumeResponse {
	return resumeResponse{
		ID:        r.ID,
		Title:     r.Title,
		Template:  string(r.Template),
		Summary:   r.Summary,
		IsDefault: r.IsDefault,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newProfileResponse(u database.User) profileResponse {
	return profileResponse{
		ID:                u.ID,
		Email:             u.Email,
		FullName:          u.FullName,
		Phone:             u.Phone,
		Location:          u.Location,
		Bio:               u.Bio,
		ProfilePictureURL: u.ProfilePictureURL,
		CreatedAt:         u.CreatedAt,
	}
}

func newCompleteResumeResponse(c *resume.Complete) completeResumeResponse {
	return completeResumeResponse{
		Resume:       newResumeResponse(c.Resume),
		User:         newProfileResponse(c.User),
		Achievements: newAchievementResponses(c.Achievements),
		Skills:       newSkillResponses(c.Skills),
	}
}

func newGeneratedResumeResponse(g *resume.Generated) generatedResumeResponse {
	resp := generatedResumeResponse{
		Resume:       newResumeResponse(g.Resume),
		Summary:      g.Summary,
		Achievements: make([]uint, 0, len(g.Achievements)),
		Skills:       make([]uint, 0, len(g.Skills)),
	}
	for _, a := range g.Achievements {
		resp.Achievements = append(resp.Achievements, a.ID)
	}
	for _, s := range g.Skills {
		resp.Skills = append(resp.Skills, s.ID)
	}
	return resp
}
