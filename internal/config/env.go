package config

import (
	"github.com/joho/godotenv"
)

// loadEnvFiles loads the first readable env file into the process
// environment. Variables already set are never overridden; having no env
// file at all is fine.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if err := godotenv.Load(name); err == nil {
			return
		}
	}
}
