package config

import (
	"os"

	"github.com/joho/godotenv"
)

// dotenvCandidates in priority order. godotenv.Load never overwrites
// variables that are already set, so OS env always wins and .env.local
// wins over .env.
var dotenvCandidates = []string{".env.local", ".env"}

// LoadDotEnv loads any .env files present in the working directory and
// returns the names of the files it found.
func LoadDotEnv() []string {
	var found []string
	for _, name := range dotenvCandidates {
		if _, err := os.Stat(name); err == nil {
			found = append(found, name)
		}
	}
	if len(found) == 0 {
		return nil
	}
	_ = godotenv.Load(found...)
	return found
}
