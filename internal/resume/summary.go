package resume

import (
	"fmt"
	"strings"

	"careerResume/internal/database"
)

const (
	maxSummarySkills = 5

	genericOpening = "Motivated professional with a passion for technology and innovation."
	closing        = "Ready to contribute to innovative projects and drive meaningful results."
)

// Synthesize 根据用户资料、成就与技能拼出简历摘要。
// 纯函数：相同输入总是得到相同输出，不做任何 I/O。
func Synthesize(user database.User, achievements []database.Achievement, skills []database.Skill) string {
	counts := countByType(achievements)

	fragments := []string{opening(user.Bio)}

	if sentence := experienceSentence(counts); sentence != "" {
		fragments = append(fragments, sentence)
	}

	if top := topSkills(skills); len(top) > 0 {
		fragments = append(fragments, "Proficient in "+strings.Join(top, ", ")+".")
	} else if pool := achievementSkillPool(achievements); len(pool) > 0 {
		if len(pool) > maxSummarySkills {
			pool = pool[:maxSummarySkills]
		}
		fragments = append(fragments, "Skilled in "+strings.Join(pool, ", ")+".")
	}

	if n := counts[database.AchievementCourse]; n > 0 {
		fragments = append(fragments, fmt.Sprintf("Continuously learning through %d completed %s.", n, plural(n, "course")))
	}

	fragments = append(fragments, closing)
	return strings.Join(fragments, " ")
}

func opening(bio string) string {
	bio = strings.TrimSpace(bio)
	if bio == "" {
		return genericOpening
	}
	return terminate(bio)
}

// experienceSentence 把实习、项目、黑客松的计数合成一句话。
// 后续分句在有前置分句时以连接词开头，否则自成句首。
func experienceSentence(counts map[database.AchievementType]int) string {
	var clauses []string

	if n := counts[database.AchievementInternship]; n > 0 {
		clauses = append(clauses, fmt.Sprintf("Completed %d professional %s", n, plural(n, "internship")))
	}
	if n := counts[database.AchievementProject]; n > 0 {
		lead := "Built"
		if len(clauses) > 0 {
			lead = "with"
		}
		clauses = append(clauses, fmt.Sprintf("%s %d hands-on %s", lead, n, plural(n, "project")))
	}
	if n := counts[database.AchievementHackathon]; n > 0 {
		lead := "Participated in"
		if len(clauses) > 0 {
			lead = "and participated in"
		}
		clauses = append(clauses, fmt.Sprintf("%s %d %s", lead, n, plural(n, "hackathon")))
	}

	if len(clauses) == 0 {
		return ""
	}
	return strings.Join(clauses, " ") + "."
}

func countByType(achievements []database.Achievement) map[database.AchievementType]int {
	counts := make(map[database.AchievementType]int, len(database.AchievementTypes))
	for _, a := range achievements {
		counts[a.Type]++
	}
	return counts
}

// topSkills 按输入顺序选出 Advanced/Expert 技能名，最多 5 个。
func topSkills(skills []database.Skill) []string {
	var names []string
	for _, s := range skills {
		if !s.Proficiency.IsTop() {
			continue
		}
		names = append(names, s.Name)
		if len(names) == maxSummarySkills {
			break
		}
	}
	return names
}

// achievementSkillPool 汇总成就里出现过的技能标签，去重并保留首次出现顺序。
func achievementSkillPool(achievements []database.Achievement) []string {
	seen := make(map[string]struct{})
	var pool []string
	for _, a := range achievements {
		for _, tag := range a.SkillsUsed {
			// 存储层写入时已清洗标签，这里仍跳过空白标签，以免直接构造的数据产生空技能名。
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			pool = append(pool, tag)
		}
	}
	return pool
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

func terminate(sentence string) string {
	switch sentence[len(sentence)-1] {
	case '.', '!', '?':
		return sentence
	default:
		return sentence + "."
	}
}
