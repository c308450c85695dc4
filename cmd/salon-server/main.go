package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"salonbook/backend/internal/audit"
	"salonbook/backend/internal/config"
	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/holidays"
	"salonbook/backend/internal/service/booking"
	"salonbook/backend/internal/store/postgres"
	"salonbook/backend/internal/telemetry"
	grpcTransport "salonbook/backend/internal/transport/grpc"
	"salonbook/backend/internal/validation"
)

const serviceName = "salon-server"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	log.Info("starting", slog.String("grpc_addr", cfg.GRPCAddr()), slog.String("log_level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("tracing setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", slog.Any("err", err))
		}
	}()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Error("business timezone invalid", slog.Any("err", err), slog.String("timezone", cfg.Timezone))
		os.Exit(1)
	}
	hours, err := domain.ParseWorkingHours(cfg.BusinessHours)
	if err != nil {
		log.Error("business hours invalid", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	trail := audit.NewTrail(postgres.NewAuditRepo(db, loc), log)

	calendar, err := holidays.New(
		holidays.NewClient(cfg.HolidayBaseURL, cfg.HolidayFetchTimeout),
		cfg.HolidayCountry,
		holidays.WithLogger(log),
	)
	if err != nil {
		log.Error("holiday data unavailable", slog.Any("err", err))
		os.Exit(1)
	}
	refreshHolidays(ctx, log, calendar, trail, loc)
	go keepHolidaysFresh(ctx, log, calendar, trail, loc, cfg.HolidayRefreshInterval)

	svc := booking.NewService(booking.Deps{
		Appointments: postgres.NewAppointmentRepo(db, loc),
		Directory:    postgres.NewDirectoryRepo(db, loc),
		Trail:        trail,
		Engine: validation.NewEngine(validation.Policy{
			LatePaymentThreshold:  cfg.LatePaymentThreshold,
			RecommendedBufferMins: cfg.RecommendedBufferMins,
			SlotStepMinutes:       cfg.SlotStepMinutes,
		}),
		Holidays: calendar,
		Hours:    hours,
		Location: loc,
		Logger:   log,
	})

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(defaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout)),
	)
	grpcTransport.RegisterSchedulingServiceServer(grpcServer, grpcTransport.NewSchedulingServer(svc, loc, log))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	if err := postgres.ReadyCheck(db)(ctx); err != nil {
		log.Error("database not ready", slog.Any("err", err))
		os.Exit(1)
	}
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcTransport.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()

	log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		healthServer.Shutdown()
		shutdown(log, grpcServer, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc server stopped with error", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// refreshHolidays pulls the current and next year and records the outcome
// in the audit trail. Failures leave the previous data in place.
func refreshHolidays(ctx context.Context, log *slog.Logger, cal *holidays.Calendar, trail *audit.Trail, loc *time.Location) {
	year := time.Now().In(loc).Year()
	report := cal.Refresh(ctx, year, year+1)

	_, err := trail.Record(ctx, domain.NewAuditEntry().
		Actor(serviceName, domain.ActorSystem).
		Action(domain.ActionHolidaysRefreshed).
		Target("holiday_calendar", strconv.Itoa(year)).
		Category(domain.GDPRSystem).
		Detail("total", strconv.Itoa(report.Total)).
		Detail("fell_back", strconv.FormatBool(report.FellBack())).
		At(time.Now().In(loc)))
	if err != nil {
		log.Warn("holiday refresh audit failed", slog.Any("err", err))
	}
}

func keepHolidaysFresh(ctx context.Context, log *slog.Logger, cal *holidays.Calendar, trail *audit.Trail, loc *time.Location, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshHolidays(ctx, log, cal, trail, loc)
		}
	}
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	host := u.Hostname()
	if host == "" {
		host = "unknown"
	}
	port := u.Port()
	if port == "" {
		port = "default"
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
