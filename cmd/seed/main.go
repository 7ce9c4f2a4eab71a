package main

import (
	"context"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

const (
	doctorCount  = 100
	patientCount = 9000
	hospitals    = 5
)

// shifts are the weekly templates handed out to doctors. Each one is a set
// of non-overlapping windows.
var shifts = [][][2]string{
	{{"09:00", "12:00"}, {"13:00", "17:00"}},
	{{"08:00", "12:00"}},
	{{"14:00", "18:30"}},
	{{"10:00", "11:45"}, {"15:00", "16:00"}},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("prod", "seed")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	log := logging.New(cfg.Env, "seed")
	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	faker := gofakeit.New(time.Now().UnixNano())

	doctors, err := seedDoctors(ctx, pool, faker, doctorCount, log)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedWindows(ctx, pool, faker, doctors, log); err != nil {
		log.Fatal().Err(err).Msg("seed availability")
	}
	if err := seedPatients(ctx, pool, faker, patientCount, log); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, log zerolog.Logger) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding doctors")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	hospitalIDs := make([]uuid.UUID, hospitals)
	for i := range hospitalIDs {
		hospitalIDs[i] = uuid.New()
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		specialty := specialties[faker.Number(0, len(specialties)-1)]
		hospital := hospitalIDs[faker.Number(0, len(hospitalIDs)-1)]
		// roughly one in twenty doctors is not taking appointments
		active := faker.Number(1, 20) != 1

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, hospital_id, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, "Dr. "+faker.Name(), specialty, hospital, active)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Msg("doctors seeded")
	return ids, nil
}

// seedWindows goes through the availability validation so seeded data
// obeys the same rules as API writes.
func seedWindows(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, doctors []uuid.UUID, log zerolog.Logger) error {
	svc := availability.NewService(availability.NewPgRepository(pool), nil, zerolog.Nop())

	created := 0
	for _, doctorID := range doctors {
		shift := shifts[faker.Number(0, len(shifts)-1)]
		for day := time.Monday; day <= time.Friday; day++ {
			// most doctors take one weekday off
			if faker.Number(1, 5) == 1 {
				continue
			}
			for _, span := range shift {
				_, err := svc.Create(ctx, availability.Window{
					DoctorID:  doctorID,
					DayOfWeek: day,
					Start:     availability.MustTimeOfDay(span[0]),
					End:       availability.MustTimeOfDay(span[1]),
					IsActive:  true,
				})
				if err != nil {
					return err
				}
				created++
			}
		}
	}

	log.Info().Int("windows", created).Msg("availability seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, log zerolog.Logger) error {
	log.Info().Int("count", count).Msg("seeding patients")

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
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), faker.Name(), faker.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Debug().Int("done", end).Int("total", count).Msg("patients batch committed")
	}

	log.Info().Msg("patients seeded")
	return nil
}
