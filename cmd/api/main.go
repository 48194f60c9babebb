package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/shoplite/commerce-api/docs"
	"github.com/shoplite/commerce-api/internal/auth"
	"github.com/shoplite/commerce-api/internal/cart"
	"github.com/shoplite/commerce-api/internal/config"
	"github.com/shoplite/commerce-api/internal/httpx"
	"github.com/shoplite/commerce-api/internal/logging"
	"github.com/shoplite/commerce-api/internal/notify"
	"github.com/shoplite/commerce-api/internal/order"
	"github.com/shoplite/commerce-api/internal/payment"
)

// @title           commerce-api
// @version         1.0
// @description     Cart, checkout and order fulfillment backend.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
func main() {
	cfg := config.Load()
	log := logging.MustNew(cfg.ServiceName, cfg.Env)
	defer func() { _ = log.Sync() }()

	if err := runMigrations(cfg); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect failed", zap.Error(err))
	}
	defer pool.Close()

	cartRepo := cart.NewPGRepo(pool)
	paymentRepo := payment.NewPGRepo(pool)
	orderRepo := order.NewPGRepo(pool)

	gateway := payment.NewHTTPGateway(
		cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret,
		cfg.Currency, cfg.CallbackURL,
	)

	var dispatcher notify.Dispatcher = notify.NewLog(log)
	if cfg.NotifyWebhookURL != "" {
		dispatcher = notify.NewWebhook(cfg.NotifyWebhookURL)
	}

	checkoutsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_started_total",
		Help: "Number of checkout sessions opened.",
	})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_confirmations_total",
		Help: "Confirmation callback outcomes.",
	}, []string{"outcome"})
	prometheus.MustRegister(checkoutsStarted, confirmations)

	svc := payment.NewService(
		cart.NewAggregator(cartRepo),
		paymentRepo,
		gateway,
		dispatcher,
		log,
		payment.Metrics{CheckoutsStarted: checkoutsStarted, Confirmations: confirmations},
	)
	resolver := auth.NewJWT(cfg.JWTSecret)

	r := gin.New()
	r.Use(httpx.RequestID(), httpx.Logger(log), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Gateway callback: unauthenticated, shaped like user traffic.
	r.GET("/payment/verify", verifyPaymentHandler(svc))

	authed := r.Group("/", httpx.Auth(resolver))
	authed.POST("/payment", startCheckoutHandler(svc))
	authed.GET("/payment", listPaymentsHandler(paymentRepo))
	authed.DELETE("/payment", deletePaymentsHandler(paymentRepo))

	authed.GET("/order", listOrdersHandler(orderRepo))
	authed.PUT("/order/cancel/:id", cancelOrderHandler(orderRepo))
	authed.DELETE("/order", deleteOrderHandler(orderRepo))
	authed.DELETE("/order/:id", deleteOrderHandler(orderRepo))

	authed.POST("/cart", addCartItemHandler(cartRepo))
	authed.GET("/cart", listCartHandler(cartRepo))
	authed.DELETE("/cart/:id", removeCartItemHandler(cartRepo))
	authed.PUT("/cart/:id", updateCartQuantityHandler(cartRepo))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()
	log.Info("listening", zap.String("addr", cfg.HTTPAddr))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

func runMigrations(cfg config.Config) error {
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.MigrationsDir, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
