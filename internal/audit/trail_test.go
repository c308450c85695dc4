package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

type fakeRepo struct {
	appendFn func(ctx context.Context, e domain.AuditEntry) error
	queryFn  func(ctx context.Context, f store.AuditFilter) ([]domain.AuditEntry, error)
}

func (f *fakeRepo) Append(ctx context.Context, e domain.AuditEntry) error {
	if f.appendFn == nil {
		panic("Append not configured")
	}
	return f.appendFn(ctx, e)
}

func (f *fakeRepo) Query(ctx context.Context, filter store.AuditFilter) ([]domain.AuditEntry, error) {
	if f.queryFn == nil {
		panic("Query not configured")
	}
	return f.queryFn(ctx, filter)
}

func newTestTrail(repo store.AuditRepository) *Trail {
	return NewTrail(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBuilder_FailsClosed(t *testing.T) {
	cases := []struct {
		name    string
		builder *domain.AuditEntryBuilder
		missing string
	}{
		{
			name:    "no actor",
			builder: domain.NewAuditEntry().Action(domain.ActionCreated).Target("appointment", "a-1"),
			missing: "actor",
		},
		{
			name:    "no action",
			builder: domain.NewAuditEntry().Actor("staff-1", domain.ActorStaff).Target("appointment", "a-1"),
			missing: "action",
		},
		{
			name:    "no target",
			builder: domain.NewAuditEntry().Actor("staff-1", domain.ActorStaff).Action(domain.ActionCreated),
			missing: "target",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.builder.Build()
			if !errors.Is(err, domain.ErrIncompleteAuditEntry) {
				t.Fatalf("error = %v, want ErrIncompleteAuditEntry", err)
			}
			var ie *domain.IncompleteAuditEntryError
			if !errors.As(err, &ie) || len(ie.Missing) != 1 || ie.Missing[0] != tc.missing {
				t.Fatalf("missing = %v, want [%s]", ie, tc.missing)
			}
		})
	}
}

func TestBuilder_MustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	domain.NewAuditEntry().MustBuild()
}

func TestRecord_PersistsCompleteEntry(t *testing.T) {
	var got domain.AuditEntry
	trail := newTestTrail(&fakeRepo{
		appendFn: func(ctx context.Context, e domain.AuditEntry) error {
			got = e
			return nil
		},
	})
	at := time.Date(2030, 3, 5, 10, 0, 0, 0, time.UTC)

	e, err := trail.Record(context.Background(), domain.NewAuditEntry().
		Actor("staff-1", domain.ActorStaff).
		Action(domain.ActionOverrideAccepted).
		Target("appointment", "a-1").
		Category(domain.GDPROverride).
		Detail("reason", "regular client").
		At(at))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got.ID != e.ID || got.ID.String() == "" {
		t.Fatalf("persisted id = %v, returned %v", got.ID, e.ID)
	}
	if got.Category != domain.GDPROverride || !got.At.Equal(at) || got.Details["reason"] != "regular client" {
		t.Fatalf("entry = %+v", got)
	}
}

func TestRecord_IncompleteEntryNeverReachesStore(t *testing.T) {
	trail := newTestTrail(&fakeRepo{})

	_, err := trail.Record(context.Background(), domain.NewAuditEntry().Action(domain.ActionDeleted))
	if !IsIncomplete(err) {
		t.Fatalf("error = %v, want incomplete", err)
	}
}

func TestAppend_RejectsHandBuiltEntry(t *testing.T) {
	trail := newTestTrail(&fakeRepo{})

	err := trail.Append(context.Background(), domain.AuditEntry{ActorID: "staff-1", ActorType: domain.ActorStaff})
	if !IsIncomplete(err) {
		t.Fatalf("error = %v, want incomplete", err)
	}
}

func TestAppend_StorageErrorIsWrapped(t *testing.T) {
	trail := newTestTrail(&fakeRepo{
		appendFn: func(ctx context.Context, e domain.AuditEntry) error {
			return store.Wrap("append audit entry", store.ErrDatabase, errors.New("disk full"))
		},
	})
	entry := domain.NewAuditEntry().
		Actor("system", domain.ActorSystem).
		Action(domain.ActionHolidaysRefreshed).
		Target("holidays", "IT").
		MustBuild()

	if err := trail.Append(context.Background(), entry); !errors.Is(err, store.ErrDatabase) {
		t.Fatalf("error = %v, want ErrDatabase", err)
	}
}

func TestQuery_PassesFilterAndClampsLimit(t *testing.T) {
	var got store.AuditFilter
	trail := newTestTrail(&fakeRepo{
		queryFn: func(ctx context.Context, f store.AuditFilter) ([]domain.AuditEntry, error) {
			got = f
			return nil, nil
		},
	})
	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := trail.Query(context.Background(), Filter{
		ActorID:  "staff-1",
		TargetID: "a-1",
		Category: domain.GDPRBooking,
		From:     from,
		To:       from.AddDate(0, 1, 0),
		Limit:    100000,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got.ActorID != "staff-1" || got.TargetID != "a-1" || got.Category != domain.GDPRBooking || !got.From.Equal(from) {
		t.Fatalf("filter = %+v", got)
	}
	// One row beyond the page size detects whether more entries exist.
	if got.Limit != MaxQueryLimit+1 {
		t.Fatalf("limit = %d, want %d", got.Limit, MaxQueryLimit+1)
	}
	if got.After != nil {
		t.Fatalf("first page has cursor %+v", got.After)
	}

	if _, err := trail.Query(context.Background(), Filter{}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got.Limit != DefaultQueryLimit+1 {
		t.Fatalf("default limit = %d, want %d", got.Limit, DefaultQueryLimit+1)
	}
}

func TestQuery_PagesThroughEveryEntry(t *testing.T) {
	base := time.Date(2030, 3, 5, 10, 0, 0, 0, time.UTC)
	var stored []domain.AuditEntry
	for i := 0; i < 5; i++ {
		stored = append(stored, domain.NewAuditEntry().
			Actor("staff-1", domain.ActorStaff).
			Action(domain.ActionCreated).
			Target("client", "cli-1").
			Category(domain.GDPRBooking).
			// two entries share an instant, the id breaks the tie
			At(base.Add(time.Duration(i/2)*time.Minute)).
			MustBuild())
	}
	sort.Slice(stored, func(i, j int) bool {
		if !stored[i].At.Equal(stored[j].At) {
			return stored[i].At.Before(stored[j].At)
		}
		return stored[i].ID.String() < stored[j].ID.String()
	})
	trail := newTestTrail(&fakeRepo{
		queryFn: func(ctx context.Context, f store.AuditFilter) ([]domain.AuditEntry, error) {
			var out []domain.AuditEntry
			for _, e := range stored {
				if f.After != nil {
					if e.At.Before(f.After.At) || (e.At.Equal(f.After.At) && e.ID.String() <= f.After.ID.String()) {
						continue
					}
				}
				out = append(out, e)
				if len(out) == f.Limit {
					break
				}
			}
			return out, nil
		},
	})

	var seen []domain.AuditEntry
	token := ""
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatalf("paging did not terminate")
		}
		page, err := trail.Query(context.Background(), Filter{TargetID: "cli-1", Limit: 2, PageToken: token})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(page.Entries) > 2 {
			t.Fatalf("page size = %d, want <= 2", len(page.Entries))
		}
		seen = append(seen, page.Entries...)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	if len(seen) != len(stored) {
		t.Fatalf("read %d entries, want %d", len(seen), len(stored))
	}
	for i := range stored {
		if seen[i].ID != stored[i].ID {
			t.Fatalf("entry %d = %s, want %s", i, seen[i].ID, stored[i].ID)
		}
	}
}

func TestQuery_ExactPageHasNoToken(t *testing.T) {
	e := domain.NewAuditEntry().
		Actor("staff-1", domain.ActorStaff).
		Action(domain.ActionCreated).
		Target("appointment", "a-1").
		MustBuild()
	trail := newTestTrail(&fakeRepo{
		queryFn: func(ctx context.Context, f store.AuditFilter) ([]domain.AuditEntry, error) {
			return []domain.AuditEntry{e, e}, nil
		},
	})

	page, err := trail.Query(context.Background(), Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Entries) != 2 || page.NextPageToken != "" {
		t.Fatalf("page = %d entries, token %q", len(page.Entries), page.NextPageToken)
	}
}

func TestQuery_RejectsMalformedPageToken(t *testing.T) {
	trail := newTestTrail(&fakeRepo{})

	for _, token := range []string{"%%%", "bm8tc2VwYXJhdG9y", "eHx5"} {
		_, err := trail.Query(context.Background(), Filter{PageToken: token})
		var in *domain.InvalidInputError
		if !errors.As(err, &in) || in.Field != "page_token" {
			t.Fatalf("token %q: error = %v, want page_token InvalidInputError", token, err)
		}
	}
}

func TestQuery_RejectsBadFilter(t *testing.T) {
	trail := newTestTrail(&fakeRepo{})
	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := trail.Query(context.Background(), Filter{Category: "marketing"}); err == nil {
		t.Fatalf("expected error for unknown category")
	}
	if _, err := trail.Query(context.Background(), Filter{From: from, To: from}); err == nil {
		t.Fatalf("expected error for empty window")
	}
}
