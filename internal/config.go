package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	// CensoredWords is comma-separated in the environment.
	CensoredWords   []string `env:"CENSORED_WORDS"`
	CharReplacement string   `env:"CHARACTER_REPLACEMENT,default=*"`

	ConnectionBufferSize int `env:"CONNECTION_BUFFER_SIZE,default=16"`
	NotifierBufferSize   int `env:"NOTIFIER_BUFFER_SIZE,default=256"`

	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	JWTSecret      string `env:"JWT_SECRET,required=true"`
	SyncAPIKeyHash string `env:"SYNC_API_KEY_HASH,required=true"`

	// InspectPort exposes the storage debug view when non-zero.
	InspectPort int `env:"INSPECT_PORT"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
