package config

import "github.com/joho/godotenv"

// LoadDotEnv loads variables from the given .env files (default ".env").
// Variables already present in the environment win over the file.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}
