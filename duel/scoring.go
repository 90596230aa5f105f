package duel

import (
	"regexp"
	"strconv"
	"strings"

	"duelserver/models"
)

var scorePattern = regexp.MustCompile(`^(\d+)\s*[-:]\s*(\d+)$`)

// Answer はプレイヤーが提出した対戦カードとスコアです。
type Answer struct {
	TeamA string `json:"teamA"`
	TeamB string `json:"teamB"`
	Score string `json:"score"`
}

type judgement struct {
	teamsCorrect   bool
	scoreCorrect   bool
	oneTeamCorrect bool
}

func normTeam(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseScore は "2-1" や "2 : 1" を数値の組にします。
func parseScore(s string) (int, int, bool) {
	m := scorePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, false
	}
	a, errA := strconv.Atoi(m[1])
	b, errB := strconv.Atoi(m[2])
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return a, b, true
}

func judge(a Answer, c models.CorrectAnswer) judgement {
	aA, aB := normTeam(a.TeamA), normTeam(a.TeamB)
	cA, cB := normTeam(c.TeamA), normTeam(c.TeamB)

	sameOrder := aA == cA && aB == cB
	swapped := aA == cB && aB == cA

	var j judgement
	j.teamsCorrect = sameOrder || swapped

	// スコアはチームの並び順に合わせて比較する。
	// 正解の2チームが同名なら両方に当てはまるので、入れ替え側の比較を優先する
	u1, u2, okU := parseScore(a.Score)
	c1, c2, okC := parseScore(c.Score)
	if okU && okC {
		switch {
		case swapped:
			j.scoreCorrect = u1 == c2 && u2 == c1
		case sameOrder:
			j.scoreCorrect = u1 == c1 && u2 == c2
		}
	}

	hitA := aA != "" && (aA == cA || aA == cB)
	hitB := aB != "" && (aB == cA || aB == cB)
	j.oneTeamCorrect = hitA != hitB
	return j
}

// ScoreThreeTier はチームとスコアが両方正解で10点、チームのみ正解で5点、それ以外は0点。
func ScoreThreeTier(a Answer, c models.CorrectAnswer) int {
	j := judge(a, c)
	switch {
	case j.teamsCorrect && j.scoreCorrect:
		return 10
	case j.teamsCorrect:
		return 5
	default:
		return 0
	}
}

// ScoreFourTier は ScoreThreeTier に加えて、片方のチームだけ正解なら2点を与えます。
func ScoreFourTier(a Answer, c models.CorrectAnswer) int {
	j := judge(a, c)
	switch {
	case j.teamsCorrect && j.scoreCorrect:
		return 10
	case j.teamsCorrect:
		return 5
	case j.oneTeamCorrect:
		return 2
	default:
		return 0
	}
}
