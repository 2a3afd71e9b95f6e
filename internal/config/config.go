package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr             string
	EnvFile          string
	SimulateResults  bool
	SimulateDelayMs  int
	WSReadTimeoutSec int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// LoadEnvFile preloads variables from a dotenv file. Variables already set
// in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func Load() Config {
	return Config{
		Addr:             getenv("PHONICS_ADDR", ":8080"),
		EnvFile:          getenv("PHONICS_ENV_FILE", ".env"),
		SimulateResults:  getenvBool("PHONICS_SIM_RESULTS", true),
		SimulateDelayMs:  getenvInt("PHONICS_SIM_DELAY_MS", 400),
		WSReadTimeoutSec: getenvInt("PHONICS_WS_READ_TIMEOUT", 60),
	}
}
