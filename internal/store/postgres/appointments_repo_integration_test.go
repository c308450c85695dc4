package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

// openTestSchema creates a throwaway schema, applies the migrations to it and
// returns a pool whose connections resolve unqualified names there.
func openTestSchema(t *testing.T) *bun.DB {
	t.Helper()

	databaseURL := strings.TrimSpace(os.Getenv("SALON_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("SALON_TEST_DATABASE_URL not set")
	}

	admin, err := Open(databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(admin)
	})

	schema := "salon_test_" + randomHex(t, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := admin.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	u, err := url.Parse(databaseURL)
	if err != nil {
		t.Fatalf("parse database url: %v", err)
	}
	q := u.Query()
	q.Set("search_path", schema+",public")
	u.RawQuery = q.Encode()

	db, err := Open(u.String(), PoolConfig{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("Open schema pool: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return applyMigrations(ctx, tx)
	})
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func TestPostgresIntegration_SaveReloadConflictAndTombstone(t *testing.T) {
	db := openTestSchema(t)
	repo := NewAppointmentRepo(db, time.UTC)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
	day := time.Date(2030, 3, 5, 0, 0, 0, 0, time.UTC)
	start := day.Add(10 * time.Hour)

	newAppt := func(id byte, operator, room string, start time.Time, minutes int) *domain.Appointment {
		t.Helper()
		a, err := domain.NewAppointment(domain.AppointmentDraft{
			ID:              domain.AppointmentID{15: id},
			Start:           start,
			DurationMinutes: minutes,
			ClientID:        "client-1",
			OperatorID:      operator,
			RoomID:          room,
			ServiceID:       "svc-cut",
		}, now)
		if err != nil {
			t.Fatalf("NewAppointment error: %v", err)
		}
		return a
	}

	a1 := newAppt(1, "op-1", "room-a", start, 30)
	if err := a1.Confirm(&domain.OverrideInfo{
		AuthorizedBy: "staff-1",
		Reason:       "client insisted",
		WarningCodes: []domain.Code{domain.CodeShortBreak},
		At:           now,
	}, now); err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if err := repo.Save(ctx, a1); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := repo.Get(ctx, a1.ID(), store.ActiveOnly)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !got.Start().Equal(a1.Start()) || got.DurationMinutes() != 30 || got.Status() != domain.StatusConfirmed {
		t.Fatalf("reloaded = %+v", got.Snapshot())
	}
	if o, ok := got.Override(); !ok || o.Reason != "client insisted" || len(o.WarningCodes) != 1 {
		t.Fatalf("override = %+v/%v", o, ok)
	}

	overlapping := newAppt(2, "op-1", "", start.Add(15*time.Minute), 30)
	if err := repo.Save(ctx, overlapping); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlap err = %v, want ErrConflict", err)
	}

	sameRoom := newAppt(3, "op-2", "room-a", start.Add(10*time.Minute), 30)
	if err := repo.Save(ctx, sameRoom); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("room overlap err = %v, want ErrConflict", err)
	}

	touching := newAppt(4, "op-1", "", start.Add(30*time.Minute), 30)
	if err := repo.Save(ctx, touching); err != nil {
		t.Fatalf("touching Save error: %v", err)
	}

	list, err := repo.ListByOperatorAndDate(ctx, "op-1", day, store.ActiveOnly)
	if err != nil {
		t.Fatalf("ListByOperatorAndDate error: %v", err)
	}
	if len(list) != 2 || list[0].ID() != a1.ID() || list[1].ID() != touching.ID() {
		t.Fatalf("listed %d appointments", len(list))
	}

	if err := repo.SoftDelete(ctx, a1.ID(), now.Add(time.Hour)); err != nil {
		t.Fatalf("SoftDelete error: %v", err)
	}
	if _, err := repo.Get(ctx, a1.ID(), store.ActiveOnly); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get after delete err = %v, want ErrNotFound", err)
	}
	gone, err := repo.Get(ctx, a1.ID(), store.IncludeDeleted)
	if err != nil {
		t.Fatalf("Get IncludeDeleted error: %v", err)
	}
	if !gone.Deleted() {
		t.Fatalf("tombstone not loaded")
	}
	if err := repo.SoftDelete(ctx, a1.ID(), now.Add(2*time.Hour)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second SoftDelete err = %v, want ErrNotFound", err)
	}

	// the tombstoned slot is free again
	if err := repo.Save(ctx, overlapping); err != nil {
		t.Fatalf("Save into freed slot error: %v", err)
	}
	if err := repo.Save(ctx, gone); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("resurrect err = %v, want ErrNotFound", err)
	}
}

func TestPostgresIntegration_CreateRefusesSameID(t *testing.T) {
	db := openTestSchema(t)
	repo := NewAppointmentRepo(db, time.UTC)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Date(2030, 1, 1, 8, 0, 0, 123456789, time.UTC)
	start := time.Date(2030, 3, 5, 10, 0, 0, 0, time.UTC)
	id := domain.AppointmentID{15: 7}

	first, err := domain.NewAppointment(domain.AppointmentDraft{
		ID: id, Start: start, DurationMinutes: 30,
		ClientID: "client-1", OperatorID: "op-1", ServiceID: "svc-cut",
	}, now)
	if err != nil {
		t.Fatalf("NewAppointment error: %v", err)
	}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	// Same id, different operator: no shared operator lock, still refused.
	second, err := domain.NewAppointment(domain.AppointmentDraft{
		ID: id, Start: start.Add(2 * time.Hour), DurationMinutes: 45,
		ClientID: "client-1", OperatorID: "op-2", RoomID: "room-b", ServiceID: "svc-cut",
	}, now)
	if err != nil {
		t.Fatalf("NewAppointment error: %v", err)
	}
	if err := repo.Create(ctx, second); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("second Create err = %v, want ErrAlreadyExists", err)
	}

	got, err := repo.Get(ctx, id, store.IncludeDeleted)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !got.Start().Equal(start) || got.OperatorID() != "op-1" || got.RoomID() != "" {
		t.Fatalf("stored row was overwritten: %+v", got.Snapshot())
	}
	if !got.CreatedAt().Equal(first.CreatedAt()) || !got.UpdatedAt().Equal(first.UpdatedAt()) {
		t.Fatalf("timestamps = %s/%s, want %s/%s", got.CreatedAt(), got.UpdatedAt(), first.CreatedAt(), first.UpdatedAt())
	}
}

func TestPostgresIntegration_AuditAppendAndQuery(t *testing.T) {
	db := openTestSchema(t)
	repo := NewAuditRepo(db, time.UTC)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	at := time.Date(2030, 3, 5, 10, 0, 0, 0, time.UTC)
	id := domain.AppointmentID{15: 9}
	for i, action := range []domain.AuditAction{domain.ActionCreated, domain.ActionConfirmed} {
		e := domain.NewAuditEntry().
			Actor("staff-1", domain.ActorStaff).
			Action(action).
			Appointment(id).
			Category(domain.GDPRBooking).
			Detail("step", fmt.Sprint(i)).
			At(at.Add(time.Duration(i) * time.Minute)).
			MustBuild()
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	entries, err := repo.Query(ctx, store.AuditFilter{TargetID: id.String()})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != domain.ActionCreated || entries[1].Details["step"] != "1" {
		t.Fatalf("entries = %+v", entries)
	}

	rest, err := repo.Query(ctx, store.AuditFilter{
		TargetID: id.String(),
		Limit:    1,
		After:    &store.AuditCursor{At: entries[0].At, ID: entries[0].ID},
	})
	if err != nil {
		t.Fatalf("Query after cursor error: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != entries[1].ID {
		t.Fatalf("entries after cursor = %+v", rest)
	}

	if _, err := db.NewRaw("DELETE FROM audit_log").Exec(ctx); err != nil {
		t.Fatalf("DELETE error: %v", err)
	}
	entries, err = repo.Query(ctx, store.AuditFilter{Category: domain.GDPRBooking})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries after DELETE = %d, want 2", len(entries))
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type mig struct {
		name string
		path string
	}
	migs := make([]mig, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		migs = append(migs, mig{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].name < migs[j].name })

	for _, m := range migs {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		stmts := splitSQLStatements(upSQL)
		for _, stmt := range stmts {
			if normalized, ok := normalizeExtensionStatement(stmt); ok {
				stmt = normalized
			}
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

func normalizeExtensionStatement(stmt string) (string, bool) {
	s := strings.TrimSpace(stmt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "CREATE EXTENSION") {
		return "", false
	}
	if !strings.Contains(upper, "BTREE_GIST") {
		return "", false
	}
	if strings.Contains(upper, " SCHEMA ") {
		return "", false
	}
	return s + " SCHEMA public", true
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
