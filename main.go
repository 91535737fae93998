package main

import (
	"crypto/tls"
	"flag"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"voicenote-api/api"
	"voicenote-api/config"
	"voicenote-api/engine"
	"voicenote-api/extract"
	"voicenote-api/notify"
	"voicenote-api/storage"
	"voicenote-api/transcribe"
)

func main() {
	configPath := flag.String("config", os.Getenv("VOICENOTE_CONFIG"), "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	store, err := storage.New(cfg.Storage.ConnectionString, cfg.Storage.RemindersTable, cfg.Storage.DeliveryEventsQueue, cfg.Storage.QueueConcurrency)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	transcriber := transcribe.New(cfg.OpenAI.APIKey, cfg.OpenAI.TranscribeModel)
	extractor := extract.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	if cfg.OpenAI.APIKey == "" {
		logger.Warn("no OpenAI key configured: transcription runs in mock mode, extraction is unavailable")
	}

	var mailer *notify.Mailer
	if cfg.EmailConfigured() {
		mailer = notify.NewMailer(cfg.Resend.APIKey, cfg.Resend.From)
	} else {
		logger.Warn("email channel is not configured")
	}
	var texter *notify.Texter
	if cfg.SMSConfigured() {
		texter = notify.NewTexter(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From)
	} else {
		logger.Warn("sms channel is not configured")
	}

	var claims engine.Claimer
	if cfg.Redis.ConnectionString != "" {
		rc := redis.NewClient(redisOptions(cfg.Redis.ConnectionString))
		claims = engine.NewRedisClaimer(rc, cfg.Redis.ClaimTTL)
	} else {
		logger.Warn("no redis configured: overlapping scans may double-send")
	}

	links := api.NewActionLinks(cfg.Actions.BaseURL, cfg.Actions.SigningKey, cfg.Actions.TokenTTL)
	if links == nil {
		logger.Warn("action links are not configured: follow-up emails go out without them")
	}

	opts := engine.Options{
		Store:       store,
		Claims:      claims,
		CallTimeout: cfg.CallTimeout,
		Logger:      logger,
	}
	// A typed nil in an interface field would dodge the engine's nil checks.
	if links != nil {
		opts.Links = links
	}
	if mailer != nil {
		opts.Mailer = mailer
	}
	if texter != nil {
		opts.Texter = texter
	}
	eng := engine.New(opts)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(api.GzipRequestMiddleware(0))

	deps := api.Dependencies{
		Store:       store,
		Transcriber: transcriber,
		Extractor:   extractor,
		Processor:   eng,
		Links:       links,
		Logger:      logger,
	}
	if mailer != nil {
		deps.Mailer = mailer
	}
	api.Register(e, deps)

	e.Logger.Fatal(e.Start(cfg.Listen))
}

// redisOptions understands both redis:// URLs and the comma-separated
// host,password=...,ssl=true form used by managed caches.
func redisOptions(connStr string) *redis.Options {
	opts, err := redis.ParseURL(connStr)
	if err == nil {
		return opts
	}
	parts := strings.Split(connStr, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
