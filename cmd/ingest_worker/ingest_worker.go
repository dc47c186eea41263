// The ingest_worker binary runs the telemetry ingestion gateway: it wires
// the auth database, the ClickHouse batchers, the object-store presigner,
// and the HTTP listeners, and drains the pipeline on shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mlop-ai/ingest/auth"
	"github.com/mlop-ai/ingest/batcher"
	"github.com/mlop-ai/ingest/ch"
	"github.com/mlop-ai/ingest/ingest"
	"github.com/mlop-ai/ingest/metrics"
	"github.com/mlop-ai/ingest/objstore"
	"github.com/mlop-ai/ingest/schema"

	// Enable profiling. For more background and usage information, see:
	//   https://blog.golang.org/profiling-go-programs
	"net/http/pprof"
	// Enable exported debug vars.  See https://golang.org/pkg/expvar/
	_ "expvar"
)

var (
	listenAddr = flag.String("listen-address", "[::]:3003", "Address for the gateway listener (dual-stack).")
	debugAddr  = flag.String("debug-address", ":9090", "Address for prometheus and pprof.")

	clickhouseURL      = flag.String("clickhouse-url", "", "ClickHouse server URL.")
	clickhouseUser     = flag.String("clickhouse-user", "", "ClickHouse user.")
	clickhousePassword = flag.String("clickhouse-password", "", "ClickHouse password.")

	storageAccessKeyID     = flag.String("storage-access-key-id", "", "Object store access key ID.")
	storageSecretAccessKey = flag.String("storage-secret-access-key", "", "Object store secret access key.")
	storageBucket          = flag.String("storage-bucket", "", "Object store bucket for file uploads.")
	storageEndpoint        = flag.String("storage-endpoint", "", "Object store endpoint URL.")

	databaseDirectURL = flag.String("database-direct-url", "", "PostgreSQL URL of the tenant/API-key database.")

	batchSize     = flag.Int("batch-size", 500000, "Rows buffered per table before a forced flush.")
	flushInterval = flag.Duration("flush-interval", 5*time.Second, "Maximum time rows wait before an inactivity flush.")
	channelDepth  = flag.Int("channel-depth", 1000, "Capacity of each per-type ingress channel.")

	envName = flag.String("environment", "", "Named environment this process runs in (local, dev, prod).")

	skipUpload       = flag.Bool("skip-upload", false, "Disable all column-store flushes (test mode).")
	bypassEnvWarning = flag.Bool("bypass-env-warning", false, "Suppress the startup environment warning.")

	shutdownGrace = flag.Duration("shutdown-grace", 10*time.Second, "Time allowed for in-flight requests during shutdown.")
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// requireFlags exits when a required configuration value is missing.
func requireFlags(pairs map[string]string) {
	for name, value := range pairs {
		if value == "" {
			env := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
			log.Fatalf("required flag -%s (env %s) is not set", name, env)
		}
	}
}

// envWarningFatal reports whether startup must abort: configuration came
// from the ambient process environment without a named environment, and
// the warning was not bypassed.
func envWarningFatal(envName string, bypass bool) bool {
	return envName == "" && !bypass
}

// sinkFor selects the production inserter or, in skip-upload mode, a null
// sink that drops every batch.
func sinkFor[R any](conn driver.Conn, table string) batcher.Sink[R] {
	if *skipUpload {
		return ch.NullInserter[R]{}
	}
	return ch.NewInserter[R](conn, table)
}

// startBatcher launches one batcher goroutine and tracks it in wg.
func startBatcher[R any](wg *sync.WaitGroup, table string, sink batcher.Sink[R], in <-chan R) {
	b := batcher.New(table, sink, in, batcher.Config{
		BatchSize:     *batchSize,
		FlushInterval: *flushInterval,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Run(context.Background())
	}()
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Failed to read args from env")

	requireFlags(map[string]string{
		"clickhouse-url":            *clickhouseURL,
		"clickhouse-user":           *clickhouseUser,
		"clickhouse-password":       *clickhousePassword,
		"storage-access-key-id":     *storageAccessKeyID,
		"storage-secret-access-key": *storageSecretAccessKey,
		"storage-bucket":            *storageBucket,
		"storage-endpoint":          *storageEndpoint,
		"database-direct-url":       *databaseDirectURL,
	})

	if envWarningFatal(*envName, *bypassEnvWarning) {
		log.Println("WARNING: configuration was read from the ambient process environment.")
		log.Println("WARNING: run with a named -environment (local, dev, prod), or set BYPASS_ENV_WARNING=true.")
		log.Fatal("exiting due to environment warning")
	}
	if *skipUpload {
		log.Println("SKIP_UPLOAD is set; column-store flushes are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := auth.Connect(ctx, *databaseDirectURL)
	rtx.Must(err, "Failed to connect to the auth database")
	defer db.Close()

	conn, err := ch.Open(*clickhouseURL, *clickhouseUser, *clickhousePassword)
	rtx.Must(err, "Failed to connect to ClickHouse")

	signer, err := objstore.New(ctx, objstore.Config{
		AccessKeyID:     *storageAccessKeyID,
		SecretAccessKey: *storageSecretAccessKey,
		Bucket:          *storageBucket,
		Endpoint:        *storageEndpoint,
	})
	rtx.Must(err, "Failed to create the object store client")

	// One bounded channel and one batcher per row type. The batcher holds
	// the only receiver; closing the channel triggers its final flush.
	metricRows := make(chan schema.MetricRow, *channelDepth)
	logRows := make(chan schema.LogRow, *channelDepth)
	dataRows := make(chan schema.DataRow, *channelDepth)
	filesRows := make(chan schema.FilesRow, *channelDepth)

	var batchers sync.WaitGroup
	startBatcher(&batchers, schema.MetricsTable, sinkFor[schema.MetricRow](conn, schema.MetricsTable), metricRows)
	startBatcher(&batchers, schema.LogsTable, sinkFor[schema.LogRow](conn, schema.LogsTable), logRows)
	startBatcher(&batchers, schema.DataTable, sinkFor[schema.DataRow](conn, schema.DataTable), dataRows)
	startBatcher(&batchers, schema.FilesTable, sinkFor[schema.FilesRow](conn, schema.FilesTable), filesRows)

	metricsPipeline := &ingest.Pipeline[schema.MetricInput, schema.MetricRow]{
		Table: schema.MetricsTable,
		Build: schema.MetricInput.Rows,
		Out:   metricRows,
	}
	logsPipeline := &ingest.Pipeline[schema.LogInput, schema.LogRow]{
		Table: schema.LogsTable,
		Build: schema.LogInput.Rows,
		Out:   logRows,
	}
	dataPipeline := &ingest.Pipeline[schema.DataInput, schema.DataRow]{
		Table: schema.DataTable,
		Build: schema.DataInput.Rows,
		Out:   dataRows,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", ingest.Health)
	mux.Handle("/ingest/metrics", metrics.DurationHandler("metrics", metricsPipeline.Handler(db)))
	mux.Handle("/ingest/logs", metrics.DurationHandler("logs", logsPipeline.Handler(db)))
	mux.Handle("/ingest/data", metrics.DurationHandler("data", dataPipeline.Handler(db)))
	mux.Handle("/files", metrics.DurationHandler("files",
		&ingest.FilesHandler{Resolver: db, Signer: signer, Out: filesRows}))
	mux.Handle("/step", metrics.DurationHandler("step",
		&ingest.StepHandler{Resolver: db, Conn: conn}))

	// Prometheus and pprof listen on a separate port so the debug surface
	// is never exposed through the gateway address.
	debugMux := http.NewServeMux()
	debugMux.Handle("/metrics", promhttp.Handler())
	debugMux.HandleFunc("/debug/pprof/", pprof.Index)
	debugMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	go func() {
		log.Printf("debug listener on %s", *debugAddr)
		if err := http.ListenAndServe(*debugAddr, debugMux); err != nil {
			log.Printf("debug listener: %v", err)
		}
	}()

	srv := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		log.Printf("gateway listening on %s", *listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listener failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutdown: stopping ingress")

	// Drain procedure: stop accepting requests, force-close stragglers
	// after the grace period, then close every ingress channel and wait
	// for each batcher's final flush.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forcing listener close: %v", err)
		srv.Close()
	}

	close(metricRows)
	close(logRows)
	close(dataRows)
	close(filesRows)
	batchers.Wait()
	log.Println("shutdown: all batchers drained")
}
