// Command wsrelayd runs an embeddable wsrelay.Server as a standalone
// daemon: it echoes inbound text frames and lets clients join rooms via
// a "/join <room>" convention, wiring authentication, rate limiting, and
// metrics the same way a real embedding application would.
package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wsrelay/wsrelay"
	"github.com/wsrelay/wsrelay/internal/auth"
	"github.com/wsrelay/wsrelay/internal/config"
	"github.com/wsrelay/wsrelay/internal/logging"
	"github.com/wsrelay/wsrelay/internal/ratelimit"
)

func main() {
	for _, path := range []string{".env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.DevMode); err != nil {
		panic(err)
	}

	opts := []wsrelay.Option{
		wsrelay.WithCheckOrigin(originChecker(cfg.AllowedOrigins)),
	}

	if cfg.TLSCertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			logging.Fatal("failed to load TLS key pair", zap.Error(err))
		}
		opts = append(opts, wsrelay.WithTLSConfig(&tls.Config{Certificates: []tls.Certificate{cert}}))
	}

	if cfg.JWKSURL != "" {
		authr, err := auth.NewJWTAuthenticator(context.Background(), cfg.JWKSURL, cfg.JWTIssuer, cfg.JWTAudience)
		if err != nil {
			logging.Fatal("failed to initialize authenticator", zap.Error(err))
		}
		opts = append(opts, wsrelay.WithAuthenticator(authr))
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()
	}
	limiter, err := ratelimit.NewLimiter(cfg.RateLimitRule, redisClient)
	if err != nil {
		logging.Fatal("failed to initialize rate limiter", zap.Error(err))
	}
	opts = append(opts, wsrelay.WithRateLimiter(limiter))

	server := wsrelay.NewServer(opts...)
	server.OnConnection(onConnection)
	server.OnError(func(err error) {
		logging.Error("server error", zap.Error(err))
	})
	server.OnClose(func() {
		logging.Info("server closed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logging.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Error("shutdown error", zap.Error(err))
		}
		cancel()
	}()

	logging.Info("wsrelayd starting", zap.String("addr", cfg.Addr))
	if err := server.Listen(ctx, cfg.Addr); err != nil {
		logging.Fatal("server exited with error", zap.Error(err))
	}
	logging.Info("wsrelayd exiting")
}

// originChecker allows any origin when the allow-list is empty (the
// common case for a local demo binary), otherwise restricts to the
// configured list.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		return slices.Contains(allowed, r.Header.Get("Origin"))
	}
}

func onConnection(c *wsrelay.Connection) {
	logging.Info("connection opened", zap.Uint64("conn_id", uint64(c.ID())))

	c.OnText(func(h *wsrelay.ConnectionHandle, msg string) {
		if room, ok := strings.CutPrefix(msg, "/join "); ok {
			if err := h.Join(strings.TrimSpace(room)); err != nil {
				logging.Warn("join failed", zap.Error(err))
			}
			return
		}
		if room, ok := strings.CutPrefix(msg, "/to "); ok {
			parts := strings.SplitN(room, " ", 2)
			if len(parts) == 2 {
				_ = h.To(parts[0]).Text(parts[1])
			}
			return
		}
		_ = h.SendText(msg)
	})

	c.OnClose(func(h *wsrelay.ConnectionHandle, ev wsrelay.CloseEvent) {
		logging.Info("connection closed",
			zap.Uint64("conn_id", uint64(h.ID())),
			zap.Int("code", ev.Code),
			zap.String("reason", ev.Reason),
		)
	})
}
