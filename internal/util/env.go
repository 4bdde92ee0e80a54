package util

import (
	"os"
	"strconv"
)

// GetEnv returns the env variable's value or the given fallback
func GetEnv(key string, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// GetEnvAsInt returns the env variable parsed as int or the given fallback
func GetEnvAsInt(key string, fallback int) int {
	strVal, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}

	val, err := strconv.Atoi(strVal)
	if err != nil {
		return fallback
	}

	return val
}

// GetEnvAsInt64 returns the env variable parsed as int64 or the given fallback
func GetEnvAsInt64(key string, fallback int64) int64 {
	strVal, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}

	val, err := strconv.ParseInt(strVal, 10, 64)
	if err != nil {
		return fallback
	}

	return val
}

// GetEnvAsBool returns the env variable parsed as bool or the given fallback
func GetEnvAsBool(key string, fallback bool) bool {
	strVal, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}

	val, err := strconv.ParseBool(strVal)
	if err != nil {
		return fallback
	}

	return val
}
