package store

import (
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/example/ride-negotiation/internal/models"
)

// TripArchive receives completed trips. It is write-only telemetry: the
// engine never reads live state back from it.
type TripArchive interface {
	ArchiveTrip(t *models.OngoingTrip) error
}

type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(dsn string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresArchive{db: db}, nil
}

func (p *PostgresArchive) ArchiveTrip(t *models.OngoingTrip) error {
	_, err := p.db.Exec(`INSERT INTO trip_archive(id, passenger_id, driver_id, pickup, destination, service_type, offered_price, final_price, rating, started_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET rating = EXCLUDED.rating`,
		t.ID, t.Request.Passenger.ID, t.Driver.ID, t.Request.Pickup, t.Request.Destination,
		string(t.Request.ServiceType), t.Request.OfferedPrice, t.FinalPrice, t.Rating, t.StartTime)
	return err
}

func (p *PostgresArchive) Close() error { return p.db.Close() }

// NopArchive is the default when no PG_DSN is configured.
type NopArchive struct{}

func (NopArchive) ArchiveTrip(*models.OngoingTrip) error { return nil }
