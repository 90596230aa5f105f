package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"duelserver/auth"        //識別トークンの発行と検証
	"duelserver/database"    //設定の読み込み、PostgreSQLとRedisの初期化
	"duelserver/duel"        //対戦エンジン（マッチング、ラウンド進行、切断、再戦）
	"duelserver/gateway"     //WebSocket接続とエンジンの橋渡し
	"duelserver/handlers"    //HTTPリクエストの処理
	"duelserver/middlewares" //識別トークンのミドルウェア
	"duelserver/migrations"  //テーブル定義
	"duelserver/questions"   //問題ファイルの読み込み
	"duelserver/throttle"    //途中退出の回数制限
	"duelserver/utils"       //ロガーの初期化とCronジョブ

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	shutdownTimeout   = 30 * time.Second
	defaultRetention  = time.Hour
	restoreQuitsLimit = 10 * time.Second
)

func main() {
	startedAt := time.Now()
	logger, err := utils.InitLogger() // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	config, err := database.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("設定ファイルの読み込みに失敗しました", zap.Error(err))
	}

	bank, err := questions.Load(config.QuestionsPath)
	if err != nil {
		logger.Fatal("問題ファイルの読み込みに失敗しました", zap.String("path", config.QuestionsPath), zap.Error(err))
	}
	logger.Info("Questions loaded", zap.Int("count", bank.Len()))

	// 非同期でPostgreSQLとRedisの初期化。どちらも未設定なら使わない
	var db *gorm.DB
	var rdb *redis.Client
	done := make(chan bool)

	go func() {
		defer func() { done <- true }()
		if !config.PostgresEnabled() {
			logger.Info("PostgreSQLが未設定のため対戦結果は保存しません")
			return
		}
		conn, err := database.InitPostgreSQL(config, logger)
		if err != nil {
			logger.Fatal("PostgreSQLの初期化に失敗しました", zap.Error(err))
		}
		if err := migrations.AutoMigrate(conn, logger); err != nil {
			logger.Fatal("マイグレーションに失敗しました", zap.Error(err))
		}
		db = conn
	}()

	go func() {
		defer func() { done <- true }()
		if config.RedisAddr == "" {
			return
		}
		client, err := database.InitRedis(config, logger)
		if err != nil {
			logger.Warn("Redisに接続できないため退出履歴はメモリのみで保持します", zap.Error(err))
			return
		}
		rdb = client
	}()

	// 2つの初期化が完了するのを待つ
	<-done
	<-done

	var throttleOpts []throttle.Option
	if rdb != nil {
		throttleOpts = append(throttleOpts, throttle.WithPersister(database.NewQuitStore(rdb, logger)))
	}
	quits := throttle.New(logger, throttleOpts...)
	if rdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), restoreQuitsLimit)
		n, err := quits.Restore(ctx)
		cancel()
		if err != nil {
			logger.Error("退出履歴の復元に失敗しました", zap.Error(err))
		} else {
			logger.Info("退出履歴を復元しました", zap.Int("records", n))
		}
	}

	hub := gateway.NewHub(logger)
	engineOpts := []duel.Option{
		duel.WithConfig(duel.ConfigFromModel(config.Game)),
		duel.WithThrottle(quits),
	}
	if db != nil {
		engineOpts = append(engineOpts, duel.WithRecorder(database.NewResultRecorder(db, logger)))
	}
	engine := duel.New(bank, hub, logger, engineOpts...)

	if config.JWTSecret == "" {
		logger.Warn("JWT_SECRETが未設定です。再起動すると識別トークンは無効になります")
	}
	issuer := auth.NewIssuer(config.JWTSecret)
	gw := gateway.New(engine, hub, issuer, config.AllowedOrigins, logger)

	// クーロンスケジューラのセットアップと呼び出し
	retention := defaultRetention
	if config.Game.FinishedRetentionMs > 0 {
		retention = time.Duration(config.Game.FinishedRetentionMs) * time.Millisecond
	}
	scheduler, err := utils.CronCleaner(quits, engine, retention, logger)
	if err != nil {
		logger.Fatal("Cronジョブの登録に失敗しました", zap.Error(err))
	}

	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))
	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	router.Use(cors.New(corsConfig(config.AllowedOrigins)))

	//各HTTPリクエストのルーティング
	router.GET("/", handlers.RootHandler)
	router.GET("/health", func(c *gin.Context) {
		handlers.HealthHandler(c, engine, startedAt)
	})
	router.GET("/api/questions", func(c *gin.Context) {
		handlers.QuestionsHandler(c, bank, logger)
	})
	router.POST("/api/identity", func(c *gin.Context) {
		handlers.IdentityHandler(c, issuer, logger)
	})
	rooms := router.Group("/api/rooms", middlewares.IdentityMiddleware(issuer, logger))
	rooms.GET("/:roomID", func(c *gin.Context) {
		handlers.RoomStateHandler(c, engine, logger)
	})
	router.GET("/ws", gw.ServeWS)

	srv := &http.Server{Addr: ":" + config.Port, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to run HTTP server", zap.Error(err))
		}
	}()
	logger.Info("Server started", zap.String("port", config.Port))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("Shutting down", zap.String("signal", received.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	<-scheduler.Stop().Done()
	hub.CloseAll()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTPサーバーの停止に失敗しました", zap.Error(err))
	}
	engine.Shutdown()
	quits.Close()
	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	logger.Info("Server stopped")
}

// corsConfig は許可オリジンが空か "*" を含めば全オリジンを許可します。
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Authorization"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
