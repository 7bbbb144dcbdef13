package app

import (
	"fmt"
	"strconv"
	"strings"

	"blockroom/internal/board"
	"blockroom/internal/room"
	"blockroom/internal/telemetry"
	"blockroom/logging"
)

const defaultAddr = ":8080"

// Config is the process configuration assembled from defaults and the
// environment.
type Config struct {
	Addr         string
	Room         room.Config
	Logging      logging.Config
	Development  bool
	Logger       telemetry.Logger
	ZapLevelName string
}

// LoadConfig applies environment overrides to the defaults. Invalid values
// are reported through logger and ignored.
func LoadConfig(getenv func(string) string, logger telemetry.Logger) Config {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	cfg := Config{
		Addr:    defaultAddr,
		Room:    room.DefaultConfig(),
		Logging: logging.DefaultConfig(),
	}

	if raw := getenv("ADDR"); raw != "" {
		cfg.Addr = raw
	}
	if raw := getenv("MAX_PLAYERS"); raw != "" {
		if value, err := positiveInt(raw); err == nil {
			cfg.Room.MaxPlayers = value
		} else {
			logger.Printf("invalid MAX_PLAYERS=%q: %v", raw, err)
		}
	}
	if raw := getenv("HEART_LIVES"); raw != "" {
		if value, err := positiveInt(raw); err == nil {
			cfg.Room.Rules.HeartLives = value
		} else {
			logger.Printf("invalid HEART_LIVES=%q: %v", raw, err)
		}
	}
	if raw := getenv("SPRINT_TARGET"); raw != "" {
		if value, err := positiveInt(raw); err == nil {
			cfg.Room.Rules.SprintTarget = value
		} else {
			logger.Printf("invalid SPRINT_TARGET=%q: %v", raw, err)
		}
	}
	if raw := getenv("RANDOMIZER"); raw != "" {
		switch kind := board.RandomizerKind(strings.ToLower(raw)); kind {
		case board.RandomizerUniform, board.RandomizerBag:
			cfg.Room.Rules.Randomizer = kind
		default:
			logger.Printf("invalid RANDOMIZER=%q: want uniform or bag", raw)
		}
	}
	if raw := getenv("LOG_SINKS"); raw != "" {
		var sinks []string
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				sinks = append(sinks, name)
			}
		}
		if len(sinks) > 0 {
			cfg.Logging.EnabledSinks = sinks
		}
	}
	if raw := getenv("LOG_JSON_PATH"); raw != "" {
		cfg.Logging.JSON.FilePath = raw
	}
	if raw := getenv("LOG_LEVEL"); raw != "" {
		if severity, ok := logging.ParseSeverity(raw); ok {
			cfg.Logging.MinimumSeverity = severity
			cfg.ZapLevelName = severity.String()
		} else {
			logger.Printf("invalid LOG_LEVEL=%q", raw)
		}
	}
	if raw := getenv("LOG_DEVELOPMENT"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.Development = value
		} else {
			logger.Printf("invalid LOG_DEVELOPMENT=%q: %v", raw, err)
		}
	}
	return cfg
}

func positiveInt(raw string) (int, error) {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return value, nil
}
