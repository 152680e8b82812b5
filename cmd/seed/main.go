package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openfleet/ride-booking/internal/db"
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

	if err := seedAvailability(context.Background(), pool, 40, 7); err != nil {
		log.Fatalf("seed availability: %v", err)
	}

	log.Println("seed complete")
}

// seedAvailability publishes hourly slots for a fleet of bikes over the next
// few days.
func seedAvailability(ctx context.Context, pool *pgxpool.Pool, bikes, days int) error {
	log.Printf("seeding availability for %d bikes over %d days", bikes, days)

	locations := []string{
		"Harbor Station",
		"Market Square",
		"University Gate",
		"Waterfront Loop",
		"Central Park East",
		"Old Town Depot",
	}

	for b := 0; b < bikes; b++ {
		bikeID := fmt.Sprintf("BIKE-%04d", gofakeit.Number(1, 9999))

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for d := 0; d < days; d++ {
			date := time.Now().AddDate(0, 0, d).Format("2006-01-02")

			for hour := 8; hour < 20; hour++ {
				if gofakeit.Number(0, 2) == 0 {
					continue // leave gaps so listings look lived-in
				}

				start := fmt.Sprintf("%02d:00", hour)
				end := fmt.Sprintf("%02d:00", hour+1)
				loc := locations[gofakeit.Number(0, len(locations)-1)]

				_, err := tx.Exec(ctx, `
					INSERT INTO availability_slots (bike_id, date, start_time, end_time, location, created_at)
					VALUES ($1, $2, $3, $4, $5, now())
					ON CONFLICT (bike_id, date, start_time, end_time) DO NOTHING
				`, bikeID, date, start, end, loc)
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("bikes seeded: %d/%d", b+1, bikes)
	}

	log.Println("availability seeded")
	return nil
}
