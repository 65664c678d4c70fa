package api

import (
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("ignoring invalid %s=%q: %v", key, v, err)
		return def
	}
	return n
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warnf("ignoring invalid %s=%q: %v", key, v, err)
		return def
	}
	return d
}
