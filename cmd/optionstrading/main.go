package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/wyfcoding/pkg/logging"
	"golang.org/x/sync/errgroup"
	gorm_mysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/wyfcoding/optionstrading/internal/account/infrastructure/messaging"
	account_mysql "github.com/wyfcoding/optionstrading/internal/account/infrastructure/persistence/mysql"
	execution_app "github.com/wyfcoding/optionstrading/internal/execution/application"
	execution_domain "github.com/wyfcoding/optionstrading/internal/execution/domain"
	execution_http "github.com/wyfcoding/optionstrading/internal/execution/interfaces/http"
	margin_domain "github.com/wyfcoding/optionstrading/internal/margin/domain"
	"github.com/wyfcoding/optionstrading/internal/marketdata/infrastructure/static"
	marketdata_http "github.com/wyfcoding/optionstrading/internal/marketdata/interfaces/http"
	orderdomain "github.com/wyfcoding/optionstrading/internal/order/domain"
	pricing_app "github.com/wyfcoding/optionstrading/internal/pricing/application"
	pricing_http "github.com/wyfcoding/optionstrading/internal/pricing/interfaces/http"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/optionstrading/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Sprintf("read config failed: %v", err))
	}

	// 2. Logger
	logger := logging.NewLogger("optionstrading", "main", viper.GetString("log.level"))
	slog.SetDefault(logger.Logger)

	// 3. Database
	dsn := viper.GetString("database.source")
	db, err := gorm.Open(gorm_mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		panic(fmt.Sprintf("connect db failed: %v", err))
	}
	if err := db.AutoMigrate(
		&account_mysql.AccountModel{},
		&account_mysql.PositionModel{},
		&orderdomain.Order{},
		&messaging.OutboxMessage{},
	); err != nil {
		panic(fmt.Sprintf("migrate db failed: %v", err))
	}

	// 4. Infrastructure & Domain
	accountRepo := account_mysql.NewAccountRepository(db)
	publisher := messaging.NewOutboxEventPublisher(db)
	quoteSource := static.NewQuoteSource()

	var estimator execution_domain.PriceEstimator = execution_domain.QuoteSideEstimator{}
	if bps := viper.GetInt64("execution.slippage_bps"); bps > 0 {
		estimator = execution_domain.SlippageEstimator{Base: estimator, Bps: bps}
	}
	engine := execution_domain.NewEngine(quoteSource, estimator)
	expiry := execution_domain.NewExpirationEngine(quoteSource)
	marginCalc := margin_domain.NewCalculator()

	// 5. Application
	tradingSvc := execution_app.NewTradingService(
		accountRepo, engine, expiry, quoteSource, marginCalc, publisher,
		execution_app.PricingParams{
			RiskFreeRate:  viper.GetFloat64("pricing.risk_free_rate"),
			DividendYield: viper.GetFloat64("pricing.dividend_yield"),
		},
		logger.Logger,
	)
	pricingSvc := pricing_app.NewPricingService(quoteSource, logger.Logger)

	// 6. Interfaces
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	execution_http.NewHandler(tradingSvc).RegisterRoutes(api)
	pricing_http.NewHandler(pricingSvc).RegisterRoutes(api)
	marketdata_http.NewHandler(quoteSource).RegisterRoutes(api)

	sys := r.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		sys.GET("/ready", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "READY"}) })
	}
	pp := r.Group("/debug/pprof")
	{
		pp.GET("/", gin.WrapF(pprof.Index))
		pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pp.GET("/profile", gin.WrapF(pprof.Profile))
		pp.GET("/symbol", gin.WrapF(pprof.Symbol))
		pp.GET("/trace", gin.WrapF(pprof.Trace))
	}

	// 7. Start
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(rootCtx)

	httpPort := viper.GetString("server.http_port")
	if httpPort == "" {
		httpPort = "8095"
	}
	server := &http.Server{Addr: fmt.Sprintf(":%s", httpPort), Handler: r}
	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Outbox 中继：账本事件异步投递到 Kafka
	if brokers := viper.GetStringSlice("kafka.brokers"); len(brokers) > 0 {
		relay := messaging.NewOutboxRelay(
			db, brokers,
			viper.GetString("kafka.topic"),
			viper.GetDuration("kafka.relay_interval"),
			viper.GetInt("kafka.relay_batch"),
			logger.Logger,
		)
		g.Go(func() error {
			err := relay.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	// 8. Graceful Shutdown
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
