package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "STORE_DRIVER", "REDIS_ADDR", "KAFKA_BROKERS", "JWT_SECRET", "CACHE_TTL", "WRITE_TIMEOUT", "APP_ENV"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, "cart-events", cfg.KafkaTopic)
	assert.False(t, cfg.AuthEnabled())
	assert.False(t, cfg.CacheEnabled())
	assert.False(t, cfg.EventsEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("APP_ENV", "production")
	t.Setenv("SEED_FILE", "/etc/cart/products.yaml")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.AuthEnabled())
	assert.True(t, cfg.EventsEnabled())
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "/etc/cart/products.yaml", cfg.SeedFile)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"short secret", map[string]string{"JWT_SECRET": "short"}},
		{"bad duration", map[string]string{"CACHE_TTL": "soon"}},
		{"zero write timeout", map[string]string{"WRITE_TIMEOUT": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"STORE_DRIVER", "JWT_SECRET", "CACHE_TTL", "WRITE_TIMEOUT"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
