package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/api"
	"github.com/sells-group/property-map/internal/building"
	"github.com/sells-group/property-map/internal/filter"
	"github.com/sells-group/property-map/internal/monitoring"
	"github.com/sells-group/property-map/internal/property"
)

var (
	servePort     int
	serveFromXLSX string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the map API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdown, err := monitoring.InitTracing(ctx, cfg.Trace, os.Stdout)
		if err != nil {
			return err
		}
		defer monitoring.Shutdown(context.Background(), shutdown)

		metrics, err := initMetrics()
		if err != nil {
			return err
		}

		cad, err := initCadastre(ctx, metrics)
		if err != nil {
			return err
		}
		defer cad.Close()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}

		sf, err := connectCRM()
		if err != nil {
			return eris.Wrap(err, "serve: connect crm")
		}
		if sf == nil {
			zap.L().Warn("serve: no CRM configured, property creation disabled")
		}

		cache := building.NewCache(buildingSource(sf, serveFromXLSX), func(set *building.Set) {
			metrics.SetBuildingCounts(filter.Histogram(set.Buildings))
		})
		if _, err := cache.Reload(ctx); err != nil {
			zap.L().Error("serve: initial building load failed", zap.Error(err))
		}

		svc := property.NewService(cad.Aggregator, catalog, crmCreator(sf),
			property.WithSaver(st),
			property.WithMetrics(metrics),
		)

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st, cad.Breakers),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		handler := api.NewRouter(api.Deps{
			Buildings:      cache,
			Resolver:       cad.Aggregator,
			Catalog:        catalog,
			Submitter:      svc,
			Store:          st,
			Metrics:        metrics,
			CORSOrigins:    cfg.Server.CORSOrigins,
			ResolveTimeout: resolveTimeout(),
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveFromXLSX, "from-xlsx", "", "load buildings from an exported workbook instead of the CRM")
	rootCmd.AddCommand(serveCmd)
}
