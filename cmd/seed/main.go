package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/sbilibin2017/user-service/internal/config"
	"github.com/sbilibin2017/user-service/internal/logger"
	"github.com/sbilibin2017/user-service/internal/models"
	"github.com/sbilibin2017/user-service/internal/pool"
	"github.com/sbilibin2017/user-service/internal/repositories"
	"github.com/sbilibin2017/user-service/internal/services"
	"github.com/sbilibin2017/user-service/internal/session"
)

type sampleUser struct {
	Username    string
	Email       string
	FullName    string
	Password    string
	IsSuperuser bool
}

var sampleUsers = []sampleUser{
	{Username: "admin", Email: "admin@example.com", FullName: "Admin User", Password: "admin123", IsSuperuser: true},
	{Username: "user1", Email: "user1@example.com", FullName: "User One", Password: "password123"},
	{Username: "user2", Email: "user2@example.com", FullName: "User Two", Password: "password123"},
}

func main() {
	configPath := flag.String("c", "config.env", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	if err := logger.Initialize(cfg.App.LogLevel, "app", cfg.App.Name, "tool", "seed"); err != nil {
		return err
	}
	defer logger.Sync()

	db := pool.New(cfg.Database)
	if err := db.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize connection pool: %w", err)
	}
	defer db.Shutdown(context.Background())

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := repositories.CreateSchema(ctx, sqlDB); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	n, err := seed(ctx, session.NewRunner(db), services.BcryptHasher{})
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("Database already seeded")
		return nil
	}
	fmt.Printf("Seeded %d users\n", n)
	return nil
}

// seed inserts the sample users in one scope unless the table already has rows.
func seed(ctx context.Context, runner services.ScopeRunner, hasher services.PasswordHasher) (int, error) {
	inserted := 0
	err := runner.Run(ctx, func(ctx context.Context, s session.Store) error {
		existing, err := s.FindMany(ctx, repositories.Everything(), 0, 1)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}

		for _, su := range sampleUsers {
			hashed, err := hasher.Hash(su.Password)
			if err != nil {
				return err
			}
			fullName := su.FullName
			superuser := su.IsSuperuser
			u := models.NewUser(models.UserCreate{
				Username:    su.Username,
				Email:       su.Email,
				FullName:    &fullName,
				IsSuperuser: &superuser,
			}, hashed)
			if err := s.Insert(ctx, u); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
