package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	d "github.com/KeyraGonzalez/tienda-checkout/internal/domain"
)

var (
	ErrSessionNotFound         = errors.New("checkout session not found")
	ErrIdempotencyKeyNotFound  = errors.New("idempotency key not found")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type CheckoutSession struct {
	ID              string
	UserID          string
	Status          d.CheckoutStatus
	Step            d.CheckoutStep
	PaymentMethod   *string
	ShippingAddress []byte // JSONB
	CartSnapshot    []byte // JSONB
	OrderID         *string
	ProviderOrderID *string
	IdempotencyKey  string
	TotalAmount     float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OutboxEvent struct {
	ID          int
	AggregateId string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

type RepoInterface interface {
	Close() error
	RunMigrations(*Credentials) error

	CreateCheckoutSession(ctx context.Context, session *CheckoutSession) error
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	GetCheckoutSessionByIdempotencyKey(ctx context.Context, key string) (*string, *d.CheckoutStatus, error)
	UpdateCheckoutSessionStatus(ctx context.Context, id *string, status *d.CheckoutStatus) error
	SetShippingAddress(ctx context.Context, id *string, address []byte, step d.CheckoutStep) error
	SetPaymentMethod(ctx context.Context, id *string, method d.PaymentMethod) error
	SetOrder(ctx context.Context, id *string, orderID *string) error
	SetProviderOrder(ctx context.Context, id *string, providerOrderID *string) error
	CompleteCheckoutSession(ctx context.Context, id *string, payload []byte, status *d.CheckoutStatus) error
	GetStuckSessions(ctx context.Context) ([]*CheckoutSession, error)

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
