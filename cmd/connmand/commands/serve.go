package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	dbus "github.com/godbus/dbus/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/config"
	"github.com/ofono-connman/connmand/connmgr"
	"github.com/ofono-connman/connmand/contextdriver"
	"github.com/ofono-connman/connmand/dbusapi"
	"github.com/ofono-connman/connmand/dialect"
	"github.com/ofono-connman/connmand/logging"
	"github.com/ofono-connman/connmand/metrics"
	"github.com/ofono-connman/connmand/netif"
	"github.com/ofono-connman/connmand/provision"
	"github.com/ofono-connman/connmand/settings"
	"github.com/ofono-connman/connmand/transport"

	"net/http"
)

var (
	imsiFlag   string
	vendorFlag string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the connection manager daemon for one modem",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&imsiFlag, "imsi", "", "subscriber IMSI owning the persisted settings for this modem")
	serveCmd.Flags().StringVar(&vendorFlag, "vendor", "generic", "modem dialect vendor: generic, quectel, ublox")
	_ = serveCmd.MarkFlagRequired("imsi")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := logging.Init(logging.Config{
		Path:       cfg.Logging.Path,
		Level:      cfg.Logging.Level,
		Console:    cfg.Logging.Console,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}); err != nil {
		return err
	}
	log := logging.For("connmand")

	store, err := settings.NewStore(cfg.Settings.Dir)
	if err != nil {
		return err
	}

	prov, err := provision.Open(cfg.Provision.DatabasePath)
	if err != nil {
		return err
	}
	defer prov.Close()
	if cfg.Provision.SeedPath != "" {
		if _, err := prov.SeedFromYAML(cfg.Provision.SeedPath); err != nil {
			log.Warn().Err(err).Msg("failed seeding provisioning database")
		}
	}

	conn, err := busConn(cfg.Bus.System)
	if err != nil {
		return err
	}
	defer conn.Close()

	exporter := dbusapi.New(conn, cfg.Bus.BasePath)

	mtr := metrics.New(nil)
	if cfg.Metrics.Enabled {
		go func() {
			if err := serveMetricsHandler(cfg.Metrics.Listen); err != nil {
				log.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	netifMgr := netif.New()

	mgr := connmgr.New(connmgr.Options{
		IMSI:                     imsiFlag,
		BasePath:                 cfg.Bus.BasePath,
		Store:                    store,
		Prov:                     prov,
		NetIf:                    netifMgr,
		Metrics:                  mtr,
		OnPropertyChanged:        exporter.OnPropertyChanged,
		OnContextAdded:           exporter.OnContextAdded,
		OnContextRemoved:         exporter.OnContextRemoved,
		OnContextPropertyChanged: exporter.OnContextPropertyChanged,
	})
	if err := mgr.Load(); err != nil {
		return err
	}

	// The modem transport (a framed AT/QMI/MBIM command-response
	// channel) is an external collaborator this core only consumes
	//; transport.NewFake lets the daemon run end to end
	// against a scripted or otherwise-supplied Channel until a real
	// framing implementation is wired in for the target hardware.
	ch := transport.NewFake()
	dial := dialect.NewForVendor(vendorFlag, ch, mgr)
	if err := dial.Probe(context.Background()); err != nil {
		return err
	}
	mgr.AttachDialect(dial)

	driver := contextdriver.FromDialect(dial)
	mgr.RegisterContextDriver(common.ContextTypeInternet, "wwan0", driver)
	mgr.RegisterContextDriver(common.ContextTypeMMS, "wwan0", driver)

	if err := exporter.Bind(mgr); err != nil {
		return err
	}

	log.Info().Str("imsi", imsiFlag).Str("vendor", vendorFlag).Msg("connmand started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("connmand shutting down")
	return nil
}

func busConn(system bool) (*dbus.Conn, error) {
	if system {
		return dbus.ConnectSystemBus()
	}
	return dbus.ConnectSessionBus()
}

func serveMetricsHandler(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, mux)
}
