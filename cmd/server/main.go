package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"restoran-menu/internal/analytics"
	"restoran-menu/internal/audit"
	"restoran-menu/internal/auth"
	"restoran-menu/internal/config"
	"restoran-menu/internal/database"
	"restoran-menu/internal/events"
	"restoran-menu/internal/ingredient"
	"restoran-menu/internal/inventory"
	"restoran-menu/internal/logger"
	"restoran-menu/internal/menu"
	"restoran-menu/internal/models"
	"restoran-menu/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()
	for _, w := range cfg.Warnings {
		zl.Warn(w)
	}

	db, err := database.Init(cfg, zl)
	if err != nil {
		zl.Fatal("veritabanı başlatılamadı", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint)
	if err != nil {
		zl.Fatal("tracing başlatılamadı", zap.Error(err))
	}

	// Kafka yapılandırılmamışsa olaylar sessizce atılır
	publisher := events.Nop()
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		kp := events.NewKafkaPublisher(events.NewKafkaWriter(brokers, cfg.KafkaTopic), zl)
		defer func() { _ = kp.Close() }()
		publisher = kp
		zl.Info("olay yayını açık", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopic))
	}

	ledger := inventory.NewLedger(db, inventory.WithPublisher(publisher), inventory.WithLogger(zl.Named("inventory")))
	catalog := ingredient.NewCatalog(db, ledger, zl.Named("ingredient"))
	coordinator := menu.NewCoordinator(db, catalog, publisher, zl.Named("menu"))
	reports := analytics.NewService(db, zl.Named("analytics"))

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				if e.Code >= fiber.StatusInternalServerError {
					zl.Error("istek başarısız", zap.String("path", c.Path()), zap.Int("status", e.Code), zap.String("error", e.Message))
				}
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			zl.Error("beklenmeyen hata", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Beklenmeyen sunucu hatası",
			})
		},
	})

	// CORS origins virgülle ayrılmış listeden okunur
	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if cfg.MetricsEnabled {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-super-admin", auth.RegisterSuperAdminHandler(db))
	api.Post("/auth/login", auth.LoginHandler(db, cfg.JWTSecret))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))
	adminOnly := auth.RequireRole(models.RoleSuperAdmin)

	protected.Get("/auth/me", auth.MeHandler(db))
	protected.Post("/users", adminOnly, auth.CreateStaffHandler(db))

	// Kategoriler
	protected.Get("/categories", menu.ListCategoriesHandler(coordinator))
	protected.Post("/categories", menu.CreateCategoryHandler(coordinator))
	protected.Put("/categories/:id", menu.UpdateCategoryHandler(coordinator))
	protected.Delete("/categories/:id", menu.DeleteCategoryHandler(coordinator))

	// Malzemeler
	protected.Get("/ingredients", ingredient.ListIngredientsHandler(catalog))
	protected.Post("/ingredients", ingredient.CreateIngredientHandler(catalog))
	protected.Get("/ingredients/low-stock", ingredient.LowStockHandler(catalog))
	protected.Get("/ingredients/:id", ingredient.GetIngredientHandler(catalog))
	protected.Put("/ingredients/:id", ingredient.UpdateIngredientHandler(catalog))
	protected.Delete("/ingredients/:id", ingredient.DeleteIngredientHandler(catalog))
	protected.Get("/ingredients/:id/stock-status", ingredient.StockStatusHandler(catalog))
	protected.Get("/ingredients/:id/usage", ingredient.UsageHandler(catalog))

	// Stok partileri
	protected.Get("/ingredients/:id/batches", inventory.ListBatchesHandler(ledger))
	protected.Post("/ingredients/:id/batches", inventory.ReceiveBatchHandler(ledger))
	protected.Post("/ingredients/:id/consume", inventory.ConsumeHandler(ledger))
	protected.Post("/batches/import", inventory.ImportBatchesHandler(ledger))
	protected.Post("/batches/refresh-statuses", adminOnly, inventory.RefreshStatusesHandler(ledger))
	protected.Post("/batches/:id/recompute-status", inventory.RecomputeStatusHandler(ledger))
	protected.Put("/batches/:id/status", adminOnly, inventory.OverrideStatusHandler(ledger))
	protected.Put("/batches/:id/correction", adminOnly, inventory.CorrectBatchHandler(ledger))
	protected.Delete("/batches/:id", adminOnly, inventory.VoidBatchHandler(ledger))

	// Tedarikçiler
	protected.Get("/suppliers", inventory.ListSuppliersHandler(ledger))
	protected.Post("/suppliers", inventory.CreateSupplierHandler(ledger))

	// Yemekler
	protected.Get("/dishes", menu.ListDishesHandler(coordinator))
	protected.Post("/dishes", menu.CreateDishHandler(coordinator))
	protected.Get("/dishes/:id", menu.GetDishHandler(coordinator))
	protected.Put("/dishes/:id", menu.UpdateDishHandler(coordinator))
	protected.Delete("/dishes/:id", menu.DeleteDishHandler(coordinator))

	// Analiz
	protected.Get("/analytics/most-profitable", analytics.MostProfitableHandler(reports))
	protected.Get("/analytics/least-profitable", analytics.LeastProfitableHandler(reports))
	protected.Get("/analytics/high-cost", analytics.HighCostHandler(reports))
	protected.Get("/analytics/export", analytics.ExportHandler(reports))

	// Audit log
	protected.Get("/audit-logs", audit.ListAuditLogsHandler(db))
	protected.Post("/audit-logs/:id/undo", adminOnly, menu.UndoAuditLogHandler(coordinator))

	go func() {
		<-ctx.Done()
		zl.Info("sunucu kapatılıyor")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zl.Warn("sunucu düzgün kapatılamadı", zap.Error(err))
		}
	}()

	addr := ":" + cfg.HTTPPort
	zl.Info("Server listening", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		zl.Error("sunucu durdu", zap.Error(err))
	}

	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(tctx); err != nil {
		zl.Warn("tracing kapatılamadı", zap.Error(err))
	}
}
