package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/application"
	appbilling "github.com/Zhima-Mochi/freshcut/internal/application/billing"
	appcart "github.com/Zhima-Mochi/freshcut/internal/application/cart"
	appcheckout "github.com/Zhima-Mochi/freshcut/internal/application/checkout"
	appinv "github.com/Zhima-Mochi/freshcut/internal/application/inventory"
	appnotif "github.com/Zhima-Mochi/freshcut/internal/application/notification"
	apporder "github.com/Zhima-Mochi/freshcut/internal/application/order"
	apppay "github.com/Zhima-Mochi/freshcut/internal/application/payment"
	"github.com/Zhima-Mochi/freshcut/internal/config"
	dombilling "github.com/Zhima-Mochi/freshcut/internal/domain/billing"
	domcart "github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	"github.com/Zhima-Mochi/freshcut/internal/domain/catalog"
	domnotif "github.com/Zhima-Mochi/freshcut/internal/domain/notification"
	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	dompay "github.com/Zhima-Mochi/freshcut/internal/domain/payment"
	"github.com/Zhima-Mochi/freshcut/internal/domain/transaction"
	infrabilling "github.com/Zhima-Mochi/freshcut/internal/infrastructure/billing"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/id"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/memory"
	infranotif "github.com/Zhima-Mochi/freshcut/internal/infrastructure/notification"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/payment/hosted"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/rabbitmq"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/redis"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/sqlstore"
	"github.com/Zhima-Mochi/freshcut/internal/observability"
	"github.com/Zhima-Mochi/freshcut/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/freshcut/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/freshcut/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	productCacheTTL  = 5 * time.Minute
	sessionPruneTick = 10 * time.Minute
	sessionMaxAge    = 24 * time.Hour
	shutdownTimeout  = 10 * time.Second
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	baseLogger, err := zaplogger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger.Zap())

	systemLogger := baseLogger.With(
		observability.F("trace_id", logging.SystemTraceID),
		observability.F("span_id", logging.SystemSpanID),
	)

	if err := run(cfg, baseLogger, systemLogger); err != nil {
		systemLogger.Error("service_exit", observability.F("error", err.Error()))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, baseLogger observability.Logger, systemLogger observability.Logger) error {
	counters, histograms := prometrics.Instruments(prometrics.New("", "", nil))
	tel := telemetry.New(oteltrace.New(cfg.ServiceName), baseLogger, counters, histograms)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()
	systemLogger.Info("store_ready", observability.F("driver", cfg.StoreDriver))

	// Carts and product reads move to Redis when it is configured.
	var (
		cartStore domcart.Store  = memory.NewCartStore()
		reader    catalog.Reader = st.products
		cache     httppresentation.CacheInvalidator
	)
	if cfg.RedisAddr != "" {
		client, err := redis.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		cartStore = redis.NewCartStore(client, cfg.CartTTL)
		productCache := redis.NewProductCache(client, st.products, productCacheTTL, baseLogger)
		reader, cache = productCache, productCache
		systemLogger.Info("redis_ready", observability.F("addr", cfg.RedisAddr))
	}

	// In-memory event bus: checkout publishes, billing/notification/export consume.
	bus := outbox.NewBus(baseLogger, outbox.Options{})
	bus.Start(ctx)

	ledger := apporder.NewLedger(st.orders, st.transactions, id.NewUUIDGenerator(), bus, apporder.LedgerConfig{
		Currency:            cfg.Currency,
		StoreTimeout:        cfg.StoreTimeout,
		FulfillRequiresPaid: cfg.FulfillRequiresPaid,
	}, tel)
	adjuster := appinv.NewAdjuster(st.products, bus, appinv.Config{
		Retry:        appinv.RetryConfig{MaxRetries: cfg.InventoryMaxRetries},
		StoreTimeout: cfg.StoreTimeout,
	}, tel)

	widget := hosted.NewWidget(cfg.PaymentScriptURL, &http.Client{Timeout: cfg.PaymentWidgetTimeout})
	var verifier dompay.Verifier = dompay.TrustingVerifier{}
	if cfg.PaymentSecret != "" {
		verifier = hosted.NewSignatureVerifier(cfg.PaymentSecret)
	} else {
		systemLogger.Warn("payment_verification_disabled",
			observability.F("reason", "PAYMENT_SECRET is empty; payment references are trusted"),
		)
	}
	payments := apppay.NewOrchestrator(widget, verifier, apppay.Config{
		KeyID:       cfg.PaymentKeyID,
		Currency:    cfg.Currency,
		ShopName:    cfg.ShopName,
		LoadTimeout: cfg.PaymentWidgetTimeout,
	}, tel)

	var channel domnotif.Channel = infranotif.NewLogChannel(baseLogger)
	if cfg.AMQPURL != "" {
		rabbit, err := rabbitmq.Dial(cfg.AMQPURL, rabbitmq.NotificationQueue)
		if err != nil {
			return err
		}
		defer func() { _ = rabbit.Close() }()
		channel = rabbit
		systemLogger.Info("notification_channel_ready", observability.F("queue", rabbit.Queue()))
	}
	dispatcher := appnotif.NewDispatcher(channel, appnotif.Config{
		ShopName: cfg.ShopName,
		Currency: cfg.Currency,
	}, tel)
	dispatcher.Start(ctx)

	carts := appcart.NewService(cartStore, reader, cfg.StoreTimeout, application.NewProbe(tel, "cart-service"))
	checkout := appcheckout.NewService(carts, ledger, payments, adjuster, bus, dispatcher, tel)

	renderer, err := infrabilling.NewHTMLRenderer(infrabilling.Shop{
		Name:     cfg.ShopName,
		Phone:    cfg.ShopPhone,
		Currency: cfg.Currency,
	})
	if err != nil {
		return err
	}
	receipts, err := openReceiptStorage(cfg)
	if err != nil {
		return err
	}
	generator := appbilling.NewGenerator(ledger, renderer, receipts, tel)

	appbilling.NewWorker(workerpresentation.NewSubscriber(bus, "billing_worker", tel), generator, tel).Start()
	appnotif.NewWorker(workerpresentation.NewSubscriber(bus, "notification_worker", tel), ledger, dispatcher, tel).Start()

	if brokers := kafka.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		writer, err := kafka.NewWriter(brokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		exporter := kafka.NewExporter(writer, tel)
		exporter.Register(workerpresentation.NewSubscriber(bus, "kafka_exporter", tel))
		defer func() { _ = exporter.Close() }()
		systemLogger.Info("event_export_enabled",
			observability.F("brokers", strings.Join(brokers, ",")),
			observability.F("topic", cfg.KafkaTopic),
		)
	}

	apporder.NewSweeper(ledger, cfg.PendingOrderTTL, 0, nil, tel).Start(ctx)
	go pruneSessions(ctx, widget, systemLogger)

	handler := httppresentation.NewHandler(httppresentation.Deps{
		Carts:    carts,
		Checkout: checkout,
		Ledger:   ledger,
		Catalog:  st.products,
		Cache:    cache,
		Sessions: widget,
		Receipts: receipts,
		Health:   st.ping,
	}, baseLogger, tel)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			systemLogger.Error("http_server_error", observability.F("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	// Drain events first so paid orders still get their receipt and message.
	bus.Stop(shutdownCtx)
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		systemLogger.Warn("notification_drain_incomplete", observability.F("error", err.Error()))
	}
	return nil
}

type stores struct {
	products     catalog.Repository
	orders       domorder.Repository
	transactions transaction.Repository
	ping         func(context.Context) error
	close        func() error
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return &stores{
			products:     memory.NewProductRepository(),
			orders:       memory.NewOrderRepository(),
			transactions: memory.NewTransactionRepository(),
			ping:         func(context.Context) error { return nil },
			close:        func() error { return nil },
		}, nil
	case config.StoreSQLite, config.StorePostgres:
		db, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
		if err != nil {
			return nil, err
		}
		return &stores{
			products:     db.Products(),
			orders:       db.Orders(),
			transactions: db.Transactions(),
			ping:         db.Ping,
			close:        db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

type receiptStorage interface {
	dombilling.Storage
	httppresentation.ReceiptSource
}

func openReceiptStorage(cfg config.Config) (receiptStorage, error) {
	baseURL := cfg.PublicBaseURL + "/receipts"
	if cfg.ReceiptDir == "" {
		return infrabilling.NewMemoryStorage(baseURL), nil
	}
	fs, err := infrabilling.NewFileStorage(cfg.ReceiptDir, baseURL)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

// pruneSessions forgets widget sessions nobody completed or dismissed.
func pruneSessions(ctx context.Context, widget *hosted.Widget, logger observability.Logger) {
	ticker := time.NewTicker(sessionPruneTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := widget.Prune(time.Now().Add(-sessionMaxAge)); n > 0 {
				logger.Info("payment_sessions_pruned", observability.F("count", n))
			}
		}
	}
}
