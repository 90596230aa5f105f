package models

// Config 構造体はサーバー全体の設定情報を保持します。
// config.json から読み込まれ、一部は環境変数で上書きされます。
type Config struct {
	Port           string     `json:"port"`
	DBHost         string     `json:"db_host"`
	DBUser         string     `json:"db_user"`
	DBPassword     string     `json:"db_password"`
	DBName         string     `json:"db_name"`
	DBSSLMode      string     `json:"db_sslmode"`
	RedisAddr      string     `json:"redis_addr"`
	RedisPassword  string     `json:"redis_password"`
	RedisDB        int        `json:"redis_db"`
	JWTSecret      string     `json:"jwt_secret"`
	AllowedOrigins []string   `json:"allowed_origins"`
	QuestionsPath  string     `json:"questions_path"`
	Game           GameConfig `json:"game"`
}

// GameConfig は対戦進行のタイミング（ミリ秒）と採点ルールです。
// 0 の項目はデフォルト値が使われます。
type GameConfig struct {
	RoundDurationMs     int64             `json:"round_duration_ms"`
	RoundSlackMs        int64             `json:"round_slack_ms"`
	ReadyLeadMs         int64             `json:"ready_lead_ms"`
	NextRoundLeadMs     int64             `json:"next_round_lead_ms"`
	ResultDisplayMs     int64             `json:"result_display_ms"`
	GraceMs             int64             `json:"grace_ms"`
	RematchCleanupMs    int64             `json:"rematch_cleanup_ms"`
	FinishedRetentionMs int64             `json:"finished_retention_ms"`
	Scoring             map[string]string `json:"scoring"` // mode -> "THREE_TIER" | "FOUR_TIER"
}

// PostgresEnabled はDB接続情報が設定されているかを返します。
func (c Config) PostgresEnabled() bool {
	return c.DBHost != "" && c.DBName != ""
}
