// Package redistest starts a throwaway Redis for integration tests.
package redistest

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// URLEnv reuses an existing Redis instead of starting a container.
const URLEnv = "DISTRIBUTOR_TEST_REDIS_URL"

type Server struct {
	Client    *redis.Client
	container *tcredis.RedisContainer
}

// Start honours URLEnv, otherwise it runs redis:7 through testcontainers.
func Start(ctx context.Context) (*Server, error) {
	url := os.Getenv(URLEnv)
	var container *tcredis.RedisContainer

	if url == "" {
		c, err := tcredis.Run(ctx, "redis:7")
		if err != nil {
			return nil, fmt.Errorf("starting redis container: %w", err)
		}
		container = c

		url, err = c.ConnectionString(ctx)
		if err != nil {
			_ = c.Terminate(ctx)
			return nil, fmt.Errorf("container url: %w", err)
		}
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		if container != nil {
			_ = container.Terminate(ctx)
		}
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if container != nil {
			_ = container.Terminate(ctx)
		}
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &Server{Client: client, container: container}, nil
}

// Flush empties the database between specs.
func (s *Server) Flush(ctx context.Context) error {
	return s.Client.FlushDB(ctx).Err()
}

func (s *Server) Close(_ context.Context) error {
	err := s.Client.Close()
	if s.container != nil {
		if termErr := testcontainers.TerminateContainer(s.container); termErr != nil && err == nil {
			err = termErr
		}
	}
	return err
}
