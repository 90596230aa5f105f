package models

// Question は出題1問分です。questions.json の1要素に対応します。
type Question struct {
	ID         string        `json:"id"`
	ImageURL   string        `json:"imageUrl"`
	Correct    CorrectAnswer `json:"correct"`
	Difficulty int           `json:"difficulty"`
	Meta       QuestionMeta  `json:"meta"`
}

// QuestionMeta は出題プールの振り分けに使う付加情報です。
type QuestionMeta struct {
	MatchType  string `json:"matchType"`
	Difficulty int    `json:"difficulty"`
}

// CorrectAnswer は正解の対戦カードとスコアです。
type CorrectAnswer struct {
	TeamA string `json:"teamA"`
	TeamB string `json:"teamB"`
	Score string `json:"score"`
}
