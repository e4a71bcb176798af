package sequence

import (
	"context"
	"fmt"
)

// Backends selectable by configuration
const (
	BackendSQL   = "sql"
	BackendRedis = "redis"
	BackendMongo = "mongo"
)

// Sources holds the counter stores a backend may be built from. Only the one the
// chosen backend needs has to be set.
type Sources struct {
	SQL           Incrementer
	Redis         Incrementer
	MongoURI      string
	MongoDatabase string
}

// Open builds the instrumented allocator for backend. The returned close func releases
// any connection Open itself created.
func Open(ctx context.Context, backend string, src Sources) (Allocator, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch backend {
	case BackendSQL, "":
		if src.SQL == nil {
			return nil, nil, fmt.Errorf("sequence backend %q needs a database", BackendSQL)
		}
		return Instrument(NewCounterAllocator(src.SQL), BackendSQL), noop, nil
	case BackendRedis:
		if src.Redis == nil {
			return nil, nil, fmt.Errorf("sequence backend %q needs a redis client", BackendRedis)
		}
		return Instrument(NewCounterAllocator(src.Redis), BackendRedis), noop, nil
	case BackendMongo:
		m, err := NewMongoAllocator(ctx, src.MongoURI, src.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return Instrument(m, BackendMongo), m.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown sequence backend %q", backend)
	}
}
