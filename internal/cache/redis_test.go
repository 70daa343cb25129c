package cache

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/javajoker/broadcast-backend/internal/config"
)

func TestConnectRedisUnreachable(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	rdb, err := ConnectRedis(config.RedisConfig{Host: "127.0.0.1", Port: "1"}, log)
	assert.Error(t, err)
	assert.Nil(t, rdb)
	assert.NoError(t, DisconnectRedis(nil))
}
