package main

import "time"

type Config struct {
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	Host           string `env:"HOST,default=localhost"`
	Port           int    `env:"PORT,default=8080"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`

	HeartbeatSweepInterval time.Duration `env:"HEARTBEAT_SWEEP_INTERVAL,default=30s"`
	HeartbeatTimeout       time.Duration `env:"HEARTBEAT_TIMEOUT,default=60s"`
	IdleSweepInterval      time.Duration `env:"IDLE_SWEEP_INTERVAL,default=120s"`
	IdleThreshold          time.Duration `env:"IDLE_THRESHOLD,default=5m"`
	AwayThreshold          time.Duration `env:"AWAY_THRESHOLD,default=15m"`

	TypingSweepInterval time.Duration `env:"TYPING_SWEEP_INTERVAL,default=1s"`
	TypingThrottle      time.Duration `env:"TYPING_THROTTLE,default=150ms"`
	TypingExpiry        time.Duration `env:"TYPING_EXPIRY,default=3s"`

	EditWindow        time.Duration `env:"EDIT_WINDOW,default=15m"`
	MaxContentLength  int           `env:"MAX_CONTENT_LENGTH,default=1000"`
	RosterLimit       int           `env:"ROSTER_LIMIT,default=50"`
	TelemetryInterval time.Duration `env:"TELEMETRY_INTERVAL,default=30s"`
}
