package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/scheduling-engine/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	providerIDs, err := seedProviders(context.Background(), pool, 100)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedWeeklyAvailability(context.Background(), pool, providerIDs); err != nil {
		log.Fatalf("seed weekly availability: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 9000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d providers", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Nutrition",
		"Physical Therapy",
		"Mental Health Counseling",
	}

	timezones := []string{
		"America/New_York",
		"America/Chicago",
		"America/Denver",
		"America/Los_Angeles",
		"Europe/London",
		"Europe/Berlin",
		"Asia/Kolkata",
		"Australia/Sydney",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		tz := timezones[gofakeit.Number(0, len(timezones)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, timezone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, spec, tz)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("providers seeded")
	return ids, nil
}

// seedWeeklyAvailability gives every provider a plausible working week:
// weekdays open with a start between 07:00 and 10:00 and a 6-9 hour day,
// weekends mostly closed.
func seedWeeklyAvailability(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) error {
	log.Printf("seeding weekly availability for %d providers", len(providerIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, pid := range providerIDs {
		for weekday := 0; weekday < 7; weekday++ {
			isWeekend := weekday == 0 || weekday == 6
			available := !isWeekend || gofakeit.Number(0, 9) == 0

			startMin := gofakeit.Number(7, 10) * 60
			endMin := startMin + gofakeit.Number(6, 9)*60
			if !available {
				startMin, endMin = 0, 0
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO weekly_availability (id, provider_id, weekday, start_minute, end_minute, is_available, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`, uuid.New(), pid, weekday, startMin, endMin, available)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("weekly availability seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
