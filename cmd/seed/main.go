package main

import (
	"context"
	"log"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/zedsoft/identity-store/config"
	"github.com/zedsoft/identity-store/internal/domain/entity"
	"github.com/zedsoft/identity-store/internal/events"
	"github.com/zedsoft/identity-store/internal/infrastructure/sqlstore"
	"github.com/zedsoft/identity-store/internal/store"
	"github.com/zedsoft/identity-store/pkg/helpers"
)

// Seeds the baseline roles and a demo account for local development.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)

	db, err := sqlstore.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	session := sqlstore.New(db)

	roles := store.NewRoleStore(session)
	roles.Logger = logger
	users := store.NewUserStore(session, roles)
	users.Logger = logger

	rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer func() { _ = rdb.Close() }()
	users.Redis = rdb
	users.CacheTTL = cfg.CacheTTL

	es, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
	if err != nil {
		logger.WithError(err).Warn("elasticsearch client init failed; indexing disabled")
	} else {
		users.ES = es
		users.ESUsersIndex = cfg.ESUsersIndex
	}

	pub, err := events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQEventsQueue)
	if err != nil {
		logger.WithError(err).Warn("rabbitmq unavailable; events disabled")
	} else {
		defer pub.Close()
		roles.Events = pub
		users.Events = pub
	}

	if err := session.Begin(ctx); err != nil {
		log.Fatalf("begin: %v", err)
	}
	defer func() { _ = session.Rollback() }()

	for _, name := range []string{"admin", "user"} {
		existing, err := roles.FindByName(ctx, name)
		if err != nil {
			log.Fatalf("find role %s: %v", name, err)
		}
		if existing != nil {
			continue
		}
		role, err := entity.NewRole(name)
		if err != nil {
			log.Fatalf("new role %s: %v", name, err)
		}
		if err := roles.Create(ctx, role); err != nil {
			log.Fatalf("create role %s: %v", name, err)
		}
		logger.WithField("role", name).Info("role seeded")
	}

	if existing, err := users.FindByName(ctx, "demo"); err != nil {
		log.Fatalf("find user demo: %v", err)
	} else if existing == nil {
		demo, err := entity.NewUser("demo")
		if err != nil {
			log.Fatalf("new user: %v", err)
		}
		demo.Email = "demo@example.com"
		demo.EmailConfirmed = true
		// Opaque placeholder; real hashes come from the credential layer.
		demo.PasswordHash = "seeded:" + uuid.NewString()
		demo.SecurityStamp = uuid.NewString()
		demo.LockoutEnabled = true
		if err := users.Create(ctx, demo); err != nil {
			log.Fatalf("create user demo: %v", err)
		}
		if err := users.AddToRole(ctx, demo, "user"); err != nil {
			log.Fatalf("add demo to role: %v", err)
		}
		if err := users.Update(ctx, demo); err != nil {
			log.Fatalf("persist demo membership: %v", err)
		}
		logger.WithField("user", demo.UserName).Info("demo user seeded")
	}

	if err := session.Commit(); err != nil {
		log.Fatalf("commit: %v", err)
	}
	logger.Info("seed complete")
}
