package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"passages.dev/gtfs"
	"passages.dev/gtfs/metrics"
	"passages.dev/gtfs/schedule"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves departures over HTTP, refreshing the feed in the background",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", ":8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

type snapshotSource interface {
	Snapshot() (*gtfs.Snapshot, error)
}

// HTTP API over the current snapshot of a source.
type api struct {
	source  snapshotSource
	metrics *metrics.Collector
	log     *slog.Logger
	now     func() time.Time
}

type departuresResponse struct {
	Date        string          `json:"date"`
	Version     string          `json:"version"`
	Departures  []departureJSON `json:"departures"`
	ParseErrors int             `json:"parse_errors"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/departures", a.instrument("departures", a.departures))
	mux.HandleFunc("/api/next", a.instrument("next", a.next))
	mux.HandleFunc("/api/firstlast", a.instrument("firstlast", a.firstLast))
	mux.HandleFunc("/api/served", a.instrument("served", a.served))
	mux.HandleFunc("/healthz", a.healthz)
	if a.metrics != nil {
		mux.Handle("/metrics", a.metrics.Handler())
	}
	return mux
}

type apiHandler func(r *http.Request) (interface{}, error)

// Wraps h with JSON encoding, error mapping and metrics.
func (a *api) instrument(endpoint string, h apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := a.now()

		status := http.StatusOK
		body, err := h(r)
		if err != nil {
			status = statusFor(err)
			body = errorResponse{Error: err.Error()}
			if status == http.StatusInternalServerError {
				a.log.Error("query failed", "endpoint", endpoint, "query", r.URL.RawQuery, "err", err)
			}
		}

		if a.metrics != nil {
			a.metrics.Queries.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
			a.metrics.QueryDuration.WithLabelValues(endpoint).Observe(a.now().Sub(start).Seconds())
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		err = json.NewEncoder(w).Encode(body)
		if err != nil {
			a.log.Warn("writing response", "endpoint", endpoint, "err", err)
		}
	}
}

type badRequestError struct{ error }

func statusFor(err error) int {
	var notFound *schedule.NotFoundError
	var badRequest badRequestError
	switch {
	case errors.As(err, &badRequest):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, gtfs.ErrNoSnapshot):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func splitParam(r *http.Request, name string) []string {
	values := []string{}
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	return values
}

func (a *api) query(r *http.Request) (*gtfs.Snapshot, gtfs.Query, error) {
	snapshot, err := a.source.Snapshot()
	if err != nil {
		return nil, gtfs.Query{}, err
	}

	params := r.URL.Query()
	flags := queryFlags{
		date:         params.Get("date"),
		route:        params.Get("route"),
		routeIDs:     splitParam(r, "route_id"),
		routePattern: params.Get("route_match"),
		stopIDs:      splitParam(r, "stop"),
		stopName:     params.Get("stop_name"),
	}
	if v := params.Get("expand"); v != "" {
		expand, err := strconv.ParseBool(v)
		if err != nil {
			return nil, gtfs.Query{}, badRequestError{fmt.Errorf("invalid expand '%s'", v)}
		}
		flags.expandStations = expand
	}

	q, err := flags.build(snapshot, a.now())
	if err != nil {
		var notFound *schedule.NotFoundError
		if errors.As(err, &notFound) {
			return nil, q, err
		}
		return nil, q, badRequestError{err}
	}

	return snapshot, q, nil
}

func (a *api) respond(snapshot *gtfs.Snapshot, date time.Time, result *gtfs.Result) (*departuresResponse, error) {
	resp := &departuresResponse{
		Date:        date.Format("2006-01-02"),
		Version:     snapshot.Version(),
		Departures:  make([]departureJSON, 0, len(result.Departures)),
		ParseErrors: len(result.ParseErrors),
	}
	for _, d := range result.Departures {
		dj, err := toDepartureJSON(snapshot, d)
		if err != nil {
			return nil, err
		}
		resp.Departures = append(resp.Departures, dj)
	}

	if a.metrics != nil && len(result.ParseErrors) > 0 {
		a.metrics.ParseErrors.Add(float64(len(result.ParseErrors)))
	}

	return resp, nil
}

func (a *api) departures(r *http.Request) (interface{}, error) {
	snapshot, q, err := a.query(r)
	if err != nil {
		return nil, err
	}

	result, err := snapshot.Departures(q)
	if err != nil {
		return nil, err
	}

	return a.respond(snapshot, q.Date, result)
}

func (a *api) next(r *http.Request) (interface{}, error) {
	snapshot, q, err := a.query(r)
	if err != nil {
		return nil, err
	}

	n := 4
	if v := r.URL.Query().Get("n"); v != "" {
		n, err = strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, badRequestError{fmt.Errorf("invalid n '%s'", v)}
		}
	}

	now := a.now()
	result, err := snapshot.NextDepartures(q, now, n)
	if err != nil {
		return nil, err
	}

	return a.respond(snapshot, now.In(snapshot.Location()), result)
}

func (a *api) firstLast(r *http.Request) (interface{}, error) {
	snapshot, q, err := a.query(r)
	if err != nil {
		return nil, err
	}

	if week, _ := strconv.ParseBool(r.URL.Query().Get("week")); week {
		days, err := snapshot.FirstLastByDayType(q)
		if err != nil {
			return nil, err
		}
		return newWeekOutput(days), nil
	}

	summary, err := snapshot.FirstLast(q)
	if err != nil {
		return nil, err
	}

	return newFirstLastOutput(q.Date, summary), nil
}

func (a *api) served(r *http.Request) (interface{}, error) {
	snapshot, q, err := a.query(r)
	if err != nil {
		return nil, err
	}
	return servedStops(snapshot, q)
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	snapshot, err := a.source.Snapshot()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, err)
		return
	}
	fmt.Fprintln(w, snapshot.Version())
}

func serve(cmd *cobra.Command, args []string) error {
	log := newLogger()

	m, s, cfg, err := newManager(cmd, log)
	if err != nil {
		return err
	}
	defer s.Close()

	collector := metrics.NewCollector()
	m.Metrics = collector

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Serve whatever storage has while the first download runs.
	err = m.LoadStored()
	if err != nil && !errors.Is(err, gtfs.ErrNoSnapshot) {
		log.Warn("loading stored feed", "err", err)
	}
	go func() {
		_ = m.Refresh(ctx)
		_ = m.Run(ctx)
	}()

	if cfg.Metrics.Addr != "" {
		metricsServer := collector.Serve(cfg.Metrics.Addr, log)
		defer metricsServer.Close()
	}

	a := &api{source: m, metrics: collector, log: log, now: time.Now}
	server := &http.Server{
		Addr:              serveAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving", "addr", serveAddr, "url", cfg.Feed.URL)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
