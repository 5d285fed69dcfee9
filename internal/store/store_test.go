package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/andresmejia3/vigil/internal/types"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("vigil_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close()

	// --- Test Scenarios ---

	sessionID, err := s.StartSession(ctx, "device 0 (v4l2)")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if sessionID == uuid.Nil {
		t.Fatal("Expected a session ID")
	}
	session := s.Session(sessionID)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sightings := []types.Sighting{
		{Identity: "ayse", Start: base, End: base.Add(4 * time.Second), FrameCount: 40, BestDistance: 31.5},
		{Identity: "mehmet", Start: base.Add(time.Second), End: base.Add(3 * time.Second), FrameCount: 12, BestDistance: 60},
		{Identity: "ayse", Start: base.Add(10 * time.Second), End: base.Add(12 * time.Second), FrameCount: 20, BestDistance: 44},
	}
	for _, sg := range sightings {
		if err := session.InsertSighting(ctx, sg); err != nil {
			t.Fatalf("InsertSighting failed: %v", err)
		}
	}
	if err := session.RecordEnrollment(ctx, "ayse", "dataset/ayse_1.jpg"); err != nil {
		t.Fatalf("RecordEnrollment failed: %v", err)
	}
	if err := s.RecordEnrollment(ctx, uuid.Nil, "zeynep", "dataset/zeynep_1.jpg"); err != nil {
		t.Fatalf("RecordEnrollment without session failed: %v", err)
	}

	// Newest first, case-insensitive filter
	records, err := s.ListSightings(ctx, "AYSE", 10)
	if err != nil {
		t.Fatalf("ListSightings failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 sightings for ayse, got %d", len(records))
	}
	if !records[0].Start.Equal(base.Add(10*time.Second)) || records[0].SessionID != sessionID {
		t.Errorf("Unexpected first record: %+v", records[0])
	}
	if records[1].FrameCount != 40 || records[1].BestDistance != 31.5 {
		t.Errorf("Unexpected second record: %+v", records[1])
	}

	all, err := s.ListSightings(ctx, "", 2)
	if err != nil || len(all) != 2 {
		t.Errorf("Expected limit to apply, got %d (%v)", len(all), err)
	}

	summary, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(summary) != 3 {
		t.Fatalf("Expected 3 identities in summary, got %d", len(summary))
	}
	if summary[0].Identity != "ayse" || summary[0].Sightings != 2 || summary[0].Seen != 6*time.Second || summary[0].Enrollments != 1 {
		t.Errorf("Unexpected ayse summary: %+v", summary[0])
	}
	if summary[2].Identity != "zeynep" || summary[2].Sightings != 0 || !summary[2].LastSeen.IsZero() {
		t.Errorf("Unexpected zeynep summary: %+v", summary[2])
	}

	last, ok, err := s.LastSeen(ctx, "mehmet")
	if err != nil || !ok || !last.Equal(base.Add(3*time.Second)) {
		t.Errorf("LastSeen(mehmet) = %v, %v, %v", last, ok, err)
	}
	if _, ok, err := s.LastSeen(ctx, "nobody"); err != nil || ok {
		t.Errorf("LastSeen(nobody) = %v, %v", ok, err)
	}

	n, err := s.RenameIdentity(ctx, "Ayse", "ayse_k")
	if err != nil {
		t.Fatalf("RenameIdentity failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 rows renamed, got %d", n)
	}

	if err := s.EndSession(ctx, sessionID); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListSightings(ctx, "", 10); err == nil {
		t.Error("Expected an error querying dropped tables")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
