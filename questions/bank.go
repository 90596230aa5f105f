// Package questions は出題データ（questions.json）の読み込みとモード別の出題プールを提供します。
package questions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"duelserver/models"
)

const defaultDifficulty = 2

// ErrEmptyBank は問題が1問もない場合に返されます。
var ErrEmptyBank = errors.New("questions: bank is empty")

// Bank は正規化済みの問題一覧と、モードごとのインデックス・チーム名一覧を保持します。
// 生成後は読み取り専用なので並行アクセスしても安全です。
type Bank struct {
	questions []models.Question
	pools     map[models.Mode][]int
	teams     map[models.Mode][]string
}

// flexInt は数値でも文字列でも受け付ける整数です。
type flexInt struct {
	value float64
	ok    bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// 数値でない難易度は未指定として扱う
		return nil
	}
	f.value, f.ok = v, true
	return nil
}

type rawMeta struct {
	MatchType  string  `json:"matchType"`
	Type       string  `json:"type"`
	Difficulty flexInt `json:"difficulty"`
	Diff       flexInt `json:"diff"`
}

type rawQuestion struct {
	ID         string               `json:"id"`
	ImageURL   string               `json:"imageUrl"`
	Correct    models.CorrectAnswer `json:"correct"`
	Difficulty flexInt              `json:"difficulty"`
	Diff       flexInt              `json:"diff"`
	MatchType  string               `json:"matchType"`
	Type       string               `json:"type"`
	Meta       rawMeta              `json:"meta"`
}

// Load は path の JSON 配列を読み込んで Bank を作ります。
func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return Parse(data)
}

// Parse は JSON 配列から Bank を作ります。
func Parse(data []byte) (*Bank, error) {
	var raws []rawQuestion
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	qs := make([]models.Question, 0, len(raws))
	for i, r := range raws {
		qs = append(qs, normalize(i, r))
	}
	if len(qs) == 0 {
		return nil, ErrEmptyBank
	}
	return New(qs), nil
}

func normalize(idx int, r rawQuestion) models.Question {
	difficulty := defaultDifficulty
	for _, d := range []flexInt{r.Difficulty, r.Meta.Difficulty, r.Diff, r.Meta.Diff} {
		if d.ok {
			difficulty = clampDifficulty(d.value)
			break
		}
	}

	// 出題プールの振り分けは meta.matchType を優先し、なければ他の候補を見る
	matchType := firstNonEmpty(r.Meta.MatchType, r.MatchType, r.Type, r.Meta.Type)
	id := r.ID
	if id == "" {
		id = fmt.Sprintf("q_%d", idx)
	}
	return models.Question{
		ID:         id,
		ImageURL:   r.ImageURL,
		Correct:    r.Correct,
		Difficulty: difficulty,
		Meta: models.QuestionMeta{
			MatchType:  string(matchTypeOf(matchType)),
			Difficulty: difficulty,
		},
	}
}

func clampDifficulty(v float64) int {
	d := int(math.Round(v))
	if d < 1 {
		return 1
	}
	if d > 5 {
		return 5
	}
	return d
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// matchTypeOf は CLUB 以外をすべて INTERNATIONAL とみなします。
func matchTypeOf(v string) models.Mode {
	if strings.ToUpper(strings.TrimSpace(v)) == string(models.ModeClub) {
		return models.ModeClub
	}
	return models.ModeInternational
}

// New は正規化済みの問題一覧から Bank を作ります。
func New(qs []models.Question) *Bank {
	b := &Bank{
		questions: qs,
		pools:     make(map[models.Mode][]int),
		teams:     make(map[models.Mode][]string),
	}
	all := make([]int, len(qs))
	for i := range qs {
		all[i] = i
		mt := matchTypeOf(qs[i].Meta.MatchType)
		b.pools[mt] = append(b.pools[mt], i)
	}
	b.pools[models.ModeAll] = all
	// 絞り込み結果が空のモードは全問にフォールバック
	for _, m := range []models.Mode{models.ModeClub, models.ModeInternational} {
		if len(b.pools[m]) == 0 {
			b.pools[m] = all
		}
	}
	for _, m := range []models.Mode{models.ModeAll, models.ModeClub, models.ModeInternational} {
		b.teams[m] = b.buildTeamOptions(b.pools[m])
	}
	return b
}

func (b *Bank) buildTeamOptions(idxs []int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, i := range idxs {
		for _, name := range []string{b.questions[i].Correct.TeamA, b.questions[i].Correct.TeamB} {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Len は問題数を返します。
func (b *Bank) Len() int {
	return len(b.questions)
}

// Question はインデックス i の問題を返します。
func (b *Bank) Question(i int) (models.Question, bool) {
	if i < 0 || i >= len(b.questions) {
		return models.Question{}, false
	}
	return b.questions[i], true
}

// Indexes はモードの出題プールのインデックスをコピーして返します。
func (b *Bank) Indexes(mode models.Mode) []int {
	pool := b.pools[models.NormalizeMode(string(mode))]
	out := make([]int, len(pool))
	copy(out, pool)
	return out
}

// TeamOptions はモードで出題されうるチーム名の一覧（ソート済み）を返します。
func (b *Bank) TeamOptions(mode models.Mode) []string {
	return b.teams[models.NormalizeMode(string(mode))]
}

// Pool は HTTP の ?pool= パラメータ（club / national）に応じた問題一覧を返します。
// 不明な値は全問を返します。
func (b *Bank) Pool(pool string) []models.Question {
	want := ""
	switch strings.ToUpper(strings.TrimSpace(pool)) {
	case "CLUB":
		want = string(models.ModeClub)
	case "NATIONAL":
		want = string(models.ModeInternational)
	}
	out := make([]models.Question, 0, len(b.questions))
	for _, q := range b.questions {
		if want == "" || q.Meta.MatchType == want {
			out = append(out, q)
		}
	}
	return out
}
