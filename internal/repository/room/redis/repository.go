package redis

import (
	"time"

	"github.com/redis/go-redis/v9"
)

type Repo struct {
	rc             *redis.Client
	expireDuration time.Duration
}

func NewRepo(rc *redis.Client, expireDuration time.Duration) *Repo {
	return &Repo{
		rc:             rc,
		expireDuration: expireDuration,
	}
}
