package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, read once at startup from the
// environment (a .env file is honored when present).
type Config struct {
	HTTPAddress string

	DockerHost    string
	WorkspaceRoot string
	LanguagesFile string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Nested concurrency: jobs at once x test cases per job at once.
	WorkerConcurrency int
	CaseConcurrency   int

	RetryAttempts int
	RetryBackoff  time.Duration

	// Result delivery: "webhook" (default when WebhookURL is set), "sqs",
	// "nats", or "" for none.
	Notifier       string
	WebhookURL     string
	SQSQueueURL    string
	SQSRegion      string
	NATSUrl        string
	NATSSubject    string
	MaxSyncCases   int
	CompletedJobs  int
	FailedJobs     int
}

func Read() *Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddress:       getenv("JUDGE_HTTP_ADDRESS", ":8080"),
		DockerHost:        os.Getenv("DOCKER_HOST"),
		WorkspaceRoot:     getenv("JUDGE_WORKSPACE_ROOT", "/tmp/judge-workspaces"),
		LanguagesFile:     os.Getenv("JUDGE_LANGUAGES_FILE"),
		RedisAddr:         getenv("JUDGE_REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("JUDGE_REDIS_PASSWORD"),
		RedisDB:           getint("JUDGE_REDIS_DB", 0),
		WorkerConcurrency: getint("JUDGE_WORKER_CONCURRENCY", 3),
		CaseConcurrency:   getint("JUDGE_CASE_CONCURRENCY", 5),
		RetryAttempts:     getint("JUDGE_RETRY_ATTEMPTS", 2),
		RetryBackoff:      time.Duration(getint("JUDGE_RETRY_BACKOFF_MS", 2000)) * time.Millisecond,
		Notifier:          os.Getenv("JUDGE_NOTIFIER"),
		WebhookURL:        os.Getenv("JUDGE_WEBHOOK_URL"),
		SQSQueueURL:       os.Getenv("JUDGE_SQS_QUEUE_URL"),
		SQSRegion:         getenv("JUDGE_SQS_REGION", "eu-central-1"),
		NATSUrl:           getenv("JUDGE_NATS_URL", "nats://localhost:4222"),
		NATSSubject:       getenv("JUDGE_NATS_SUBJECT", "judge.results"),
		MaxSyncCases:      getint("JUDGE_MAX_SYNC_CASES", 5),
		CompletedJobs:     getint("JUDGE_COMPLETED_RETENTION", 50),
		FailedJobs:        getint("JUDGE_FAILED_RETENTION", 20),
	}
	if cfg.Notifier == "" && cfg.WebhookURL != "" {
		cfg.Notifier = "webhook"
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
