package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"entity-learning-service/internal/app"
	"entity-learning-service/internal/config"
	"entity-learning-service/internal/handler"
	"entity-learning-service/internal/notify"
	"entity-learning-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to config file (.yml or .toml)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger, err := app.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting Entity Learning Service...")

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize service", zap.Error(err))
	}
	defer a.Close()

	// Telegram notifications are optional
	bot, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, statusFunc(a), logger)
	if err != nil {
		logger.Fatal("Failed to initialize Telegram bot", zap.Error(err))
	}
	var notifier service.Notifier
	if bot != nil {
		notifier = bot
	}

	jobs := service.NewJobs(a.Learner, a.Repo, notifier, logger)

	apiHandler := handler.NewHandler(a.Learner, jobs, handler.Config{
		DefaultTopN:         cfg.Sampler.DefaultTopN,
		BlockOnRegression:   *cfg.Learning.BlockOnRegression,
		RegressionThreshold: *cfg.Learning.RegressionThreshold,
		JWTSecret:           cfg.Auth.JWTSecret,
	}, logger)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret is empty, mutating endpoints are not protected")
	}

	// Setup Gin router
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	apiHandler.RegisterRoutes(router)

	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", zap.String("address", serverAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return bot.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := jobs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Training jobs did not stop in time", zap.Error(err))
		}
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("Entity Learning Service is running",
		zap.String("port", cfg.Server.Port),
		zap.String("model", cfg.Model.Name),
		zap.Bool("model_loaded", a.Learner.ModelLoaded()))

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return
	}

	logger.Info("Server exited")
}

func statusFunc(a *app.App) notify.StatusFunc {
	return func() string {
		current, err := a.Learner.CurrentVersion()
		if err != nil {
			return "registry error: " + err.Error()
		}
		version := "none"
		if current != nil {
			version = fmt.Sprintf("%s (accuracy %.4f)", current.Version, current.Accuracy)
		}

		scenarios, err := a.Learner.ListScenarios()
		if err != nil {
			return "store error: " + err.Error()
		}
		text := fmt.Sprintf("Model %s: loaded=%t, published=%s", a.Config.Model.Name, a.Learner.ModelLoaded(), version)
		for _, s := range scenarios {
			stats, err := a.Learner.Stats(s.ID)
			if err != nil {
				continue
			}
			text += fmt.Sprintf("\n%s: %d pending, %d verified", s.Name, stats.Pending, stats.Verified)
		}
		return text
	}
}
