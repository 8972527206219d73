package cmd

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

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	authcontrollers "github.com/NOVASWAY/Seth2.0-sub005/services/auth-service/controllers"
	authmodels "github.com/NOVASWAY/Seth2.0-sub005/services/auth-service/models"
	authroutes "github.com/NOVASWAY/Seth2.0-sub005/services/auth-service/routes"
	billingcontrollers "github.com/NOVASWAY/Seth2.0-sub005/services/billing-service/controllers"
	billingmodels "github.com/NOVASWAY/Seth2.0-sub005/services/billing-service/models"
	"github.com/NOVASWAY/Seth2.0-sub005/services/billing-service/mpesa"
	billingroutes "github.com/NOVASWAY/Seth2.0-sub005/services/billing-service/routes"
	clinicalcontrollers "github.com/NOVASWAY/Seth2.0-sub005/services/clinical-service/controllers"
	clinicalmodels "github.com/NOVASWAY/Seth2.0-sub005/services/clinical-service/models"
	clinicalroutes "github.com/NOVASWAY/Seth2.0-sub005/services/clinical-service/routes"
	inventorycontrollers "github.com/NOVASWAY/Seth2.0-sub005/services/inventory-service/controllers"
	inventorymodels "github.com/NOVASWAY/Seth2.0-sub005/services/inventory-service/models"
	inventoryroutes "github.com/NOVASWAY/Seth2.0-sub005/services/inventory-service/routes"
	patientcontrollers "github.com/NOVASWAY/Seth2.0-sub005/services/patient-service/controllers"
	patientmodels "github.com/NOVASWAY/Seth2.0-sub005/services/patient-service/models"
	patientroutes "github.com/NOVASWAY/Seth2.0-sub005/services/patient-service/routes"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/config"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

var allServices = []string{"auth", "patients", "inventory", "billing", "clinical"}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API and mount the selected services under /api.

Services:
  auth       /api/auth
  patients   /api/patients, /api/visits
  inventory  /api/inventory
  billing    /api/financial
  clinical   /api/prescriptions, /api/lab-requests, /api/lab-tests

M-Pesa STK push is enabled when MPESA_CONSUMER_KEY, MPESA_CONSUMER_SECRET,
MPESA_SHORTCODE, MPESA_PASSKEY and MPESA_CALLBACK_URL are all set. When
REDIS_ADDRESS is set the gateway token and the per-invoice push lock are
shared through Redis.`,
	Example: `  # Everything
  clinic serve

  # Only the ledger and billing, with readable logs
  clinic serve --services inventory,billing --log-format console`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringSlice("services", allServices, "Services to mount")
	serveCmd.Flags().String("port", "", "Port to listen on (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.WithComponent("server")

	services, _ := cmd.Flags().GetStringSlice("services")
	enabled, err := selectServices(services)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Server.Port = port
	}

	if err := security.RegisterValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}

	ctx := context.Background()
	db, err := config.ConnectDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := config.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	gin.SetMode(cfg.Server.GinMode)
	r := gin.New()
	r.Use(gin.Recovery(), logger.RequestLogger(), security.CORSMiddleware(cfg.Server.CORSAllowedOrigins))
	r.GET("/health", healthHandler(db, rdb))

	tokens := security.NewTokenManager(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	api := r.Group("/api")

	if enabled["auth"] {
		ac := authcontrollers.NewAuthController(authmodels.NewUserStore(db), tokens)
		authroutes.AuthRoutes(api.Group("/auth"), db, tokens, ac)
	}
	if enabled["patients"] {
		patients, visits := patientmodels.NewPatientStore(db), patientmodels.NewVisitStore(db)
		patientroutes.PatientRoutes(api.Group("/patients"), db, tokens, patientcontrollers.NewPatientController(patients, visits))
		patientroutes.VisitRoutes(api.Group("/visits"), db, tokens, patientcontrollers.NewVisitController(patients, visits))
	}
	if enabled["inventory"] {
		ic := inventorycontrollers.NewInventoryController(inventorymodels.NewInventoryStore(db, cfg.Inventory.ExpiryWindowDays))
		inventoryroutes.InventoryRoutes(api.Group("/inventory"), db, tokens, ic)
	}
	if enabled["billing"] {
		store := billingmodels.NewBillingStore(db, cfg.Billing.VATRate, cfg.Billing.DueDays)
		client, locker := newMpesa(cfg, rdb)
		fc := billingcontrollers.NewFinancialController(store)
		mc := billingcontrollers.NewMpesaController(store, client, locker)
		billingroutes.FinancialRoutes(api.Group("/financial"), db, tokens, fc, mc)
	}
	if enabled["clinical"] {
		pc := clinicalcontrollers.NewPrescriptionController(clinicalmodels.NewPrescriptionStore(db))
		lc := clinicalcontrollers.NewLabController(clinicalmodels.NewLabStore(db))
		clinicalroutes.PrescriptionRoutes(api.Group("/prescriptions"), db, tokens, pc)
		clinicalroutes.LabRequestRoutes(api.Group("/lab-requests"), db, tokens, lc)
		clinicalroutes.LabTestRoutes(api.Group("/lab-tests"), db, tokens, lc)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Strs("services", services).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}

func selectServices(names []string) (map[string]bool, error) {
	enabled := map[string]bool{}
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		known := false
		for _, s := range allServices {
			if s == name {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown service %q (available: %s)", name, strings.Join(allServices, ", "))
		}
		enabled[name] = true
	}
	if len(enabled) == 0 {
		return nil, errors.New("no services selected")
	}
	return enabled, nil
}

// newMpesa returns a nil client when the gateway is not configured. The token
// cache and the push lock live in Redis when it is available.
func newMpesa(cfg *config.Config, rdb *redis.Client) (*mpesa.Client, mpesa.Locker) {
	log := logger.WithComponent("mpesa")

	var tokens mpesa.TokenCache = mpesa.NewMemoryTokenCache()
	var locker mpesa.Locker = mpesa.NewLocalLocker()
	if rdb != nil {
		tokens = mpesa.NewRedisTokenCache(rdb)
		locker = mpesa.NewRedisLocker(rdb)
	}

	if !cfg.Mpesa.Enabled() {
		log.Warn().Msg("M-Pesa credentials not configured, STK push is disabled")
		return nil, locker
	}

	client := mpesa.NewClient(mpesa.Config{
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		ShortCode:      cfg.Mpesa.ShortCode,
		PassKey:        cfg.Mpesa.PassKey,
		BaseURL:        cfg.Mpesa.BaseURL,
		CallbackURL:    cfg.Mpesa.CallbackURL,
		Timeout:        cfg.Mpesa.Timeout,
	}, tokens)
	log.Info().Str("base_url", cfg.Mpesa.BaseURL).Bool("shared_cache", rdb != nil).Msg("M-Pesa gateway configured")
	return client, locker
}

func healthHandler(db *sqlx.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := gin.H{"database": "ok"}
		healthy := true
		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unreachable"
			healthy = false
		}
		if rdb != nil {
			checks["redis"] = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unreachable"
				healthy = false
			}
		}

		status, state := http.StatusOK, "healthy"
		if !healthy {
			status, state = http.StatusServiceUnavailable, "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":    state,
			"checks":    checks,
			"timestamp": time.Now().Unix(),
		})
	}
}
