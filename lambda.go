package strata

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/stratakv/strata/pkg/mapper"
	"github.com/stratakv/strata/pkg/session"
)

var (
	// Shared Lambda adapter so warm invocations reuse connections.
	globalLambdaAdapter *LambdaAdapter
	lambdaOnce          sync.Once
)

// lambdaCleanupBuffer is how long before the invocation deadline adapter
// work should stop, leaving room to flush logs before the sandbox freezes.
const lambdaCleanupBuffer = time.Second

// LambdaAdapter wraps Adapter for AWS Lambda execution environments: one
// instance per environment, an HTTP pool sized to the function's memory,
// and mapper pre-registration at init time to keep cold starts short.
//
// Configuration comes from the environment: STRATA_TABLE_NAME,
// STRATA_KMS_KEY_ARN and STRATA_OVERFLOW_BUCKET, with AWS_REGION picked up
// from the runtime.
type LambdaAdapter struct {
	*Adapter
	mapperCache sync.Map
	isLambda    bool
	memoryMB    int
}

// NewLambdaOptimized returns the process-wide Lambda adapter, creating it
// on the first (cold start) call.
func NewLambdaOptimized() (*LambdaAdapter, error) {
	if globalLambdaAdapter != nil {
		return globalLambdaAdapter, nil
	}

	var err error
	lambdaOnce.Do(func() {
		globalLambdaAdapter, err = createLambdaAdapter()
	})
	return globalLambdaAdapter, err
}

func createLambdaAdapter() (*LambdaAdapter, error) {
	memoryMB := LambdaMemoryMB()
	poolSize := poolSizeForMemory(memoryMB)

	httpClient := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        poolSize,
			MaxIdleConnsPerHost: poolSize,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	cfg := *session.DefaultConfig()
	cfg.Region = lambdaRegion()
	if table := os.Getenv("STRATA_TABLE_NAME"); table != "" {
		cfg.TableName = table
	}
	cfg.KMSKeyARN = os.Getenv("STRATA_KMS_KEY_ARN")
	cfg.OverflowBucket = os.Getenv("STRATA_OVERFLOW_BUCKET")
	cfg.AWSConfigOptions = []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
		config.WithRetryMode(aws.RetryModeAdaptive),
	}

	adapter, err := New(cfg)
	if err != nil {
		return nil, err
	}

	return &LambdaAdapter{
		Adapter:  adapter,
		isLambda: IsLambdaEnvironment(),
		memoryMB: memoryMB,
	}, nil
}

// PreRegisterMappers registers mappers once at init time so invocation
// handlers never pay for registration.
func (la *LambdaAdapter) PreRegisterMappers(mappers ...*mapper.Mapper) error {
	for _, m := range mappers {
		if err := la.RegisterMapper(m); err != nil {
			return err
		}
		la.mapperCache.Store(m.Name, true)
	}
	return nil
}

// IsMapperRegistered reports whether PreRegisterMappers saw the name.
func (la *LambdaAdapter) IsMapperRegistered(name string) bool {
	_, ok := la.mapperCache.Load(name)
	return ok
}

// WithInvocationTimeout derives a context that expires lambdaCleanupBuffer
// before the invocation deadline. Contexts without a deadline pass through
// as a plain cancelable context.
func WithInvocationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-lambdaCleanupBuffer))
}

// IsLambdaEnvironment detects whether the process runs in AWS Lambda.
func IsLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// LambdaMemoryMB returns the function's allocated memory in MB, or 0
// outside Lambda.
func LambdaMemoryMB() int {
	mem, err := strconv.Atoi(os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE"))
	if err != nil {
		return 0
	}
	return mem
}

// RemainingTime returns the time left until the context deadline, or -1
// when the context has none.
func RemainingTime(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return -1
	}
	return time.Until(deadline)
}

func lambdaRegion() string {
	if region := os.Getenv("AWS_REGION"); region != "" {
		return region
	}
	return session.DefaultConfig().Region
}

// poolSizeForMemory scales the HTTP connection pool with function memory;
// low-memory functions also get proportionally less CPU.
func poolSizeForMemory(memoryMB int) int {
	switch {
	case memoryMB <= 0:
		return 10
	case memoryMB <= 512:
		return 5
	case memoryMB <= 1024:
		return 10
	default:
		return 20
	}
}
