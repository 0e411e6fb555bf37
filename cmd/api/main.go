// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/sheet-forge/internal/config"
	"github.com/yourusername/sheet-forge/internal/excel"
	"github.com/yourusername/sheet-forge/internal/jobs"
	"github.com/yourusername/sheet-forge/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	manager, store, err := setupServices(cfg)
	if err != nil {
		log.Fatalf("Failed to set up services: %v", err)
	}
	manager.StartSweeper()

	// ルーティングの設定
	setupRoutes(router, manager, store)

	// サーバーの起動とシグナルによる終了処理
	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	// 実行中のジョブを期限まで待つ（間に合わないジョブは放棄する）
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Printf("Job manager shutdown error: %v", err)
	}
}

// setupServices はストレージ・生成サービス・ジョブ管理を組み立てます。
func setupServices(cfg *config.Config) (*jobs.Manager, *storage.Local, error) {
	store, err := storage.NewLocal(cfg.OutputDir)
	if err != nil {
		return nil, nil, err
	}

	service, err := excel.NewService(cfg, store, log.Default())
	if err != nil {
		return nil, nil, err
	}

	ttlMinutes := cfg.JobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 10
	}
	registry := jobs.NewStore(time.Duration(ttlMinutes) * time.Minute)

	manager, err := jobs.NewManager(cfg, service, registry, log.Default())
	if err != nil {
		return nil, nil, err
	}
	return manager, store, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "sheet-forge-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, manager *jobs.Manager, store *storage.Local) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		api.POST("/excel/build", excel.BuildHandler(manager))

		api.GET("/jobs/:id", jobStatusHandler(manager))
		api.GET("/jobs/:id/download", jobDownloadHandler(manager, store))

		// 生成ファイルを保存名で直接取得するルート
		api.GET("/generated/:name", generatedFileHandler(store))
	}
}
