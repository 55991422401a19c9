package strata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/stratakv/strata/pkg/session"
)

// AccountConfig describes one partner account reachable by assuming a role.
type AccountConfig struct {
	RoleARN    string
	ExternalID string
	Region     string
	TableName  string
	// SessionDuration bounds the assumed-role credentials. Zero means one
	// hour.
	SessionDuration time.Duration
}

// MultiAccountAdapter hands out adapters for partner AWS accounts. Partner
// adapters authenticate by assuming the partner's role and are cached until
// shortly before their credentials expire; a background loop refreshes
// entries that are close to expiry.
type MultiAccountAdapter struct {
	base        *LambdaAdapter
	partnerOpts []AdapterOption
	accounts    map[string]AccountConfig
	cache       sync.Map
	baseConfig  aws.Config
	refreshTick *time.Ticker
	refreshStop chan struct{}
	mu          sync.RWMutex
}

type partnerEntry struct {
	adapter *LambdaAdapter
	expiry  time.Time
	account AccountConfig
}

func (e *partnerEntry) expired() bool {
	return time.Now().After(e.expiry)
}

// NewMultiAccount creates a multi-account adapter. The given options apply
// to every partner adapter it creates.
func NewMultiAccount(accounts map[string]AccountConfig, opts ...AdapterOption) (*MultiAccountAdapter, error) {
	base, err := NewLambdaOptimized()
	if err != nil {
		return nil, fmt.Errorf("failed to create base adapter: %w", err)
	}

	baseConfig, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load base AWS config: %w", err)
	}

	ma := &MultiAccountAdapter{
		base:        base,
		partnerOpts: opts,
		accounts:    accounts,
		baseConfig:  baseConfig,
		refreshStop: make(chan struct{}),
	}
	ma.startCredentialRefresh()
	return ma, nil
}

// Partner returns the adapter for the given partner id. An empty id
// returns the base adapter.
func (ma *MultiAccountAdapter) Partner(partnerID string) (*LambdaAdapter, error) {
	if partnerID == "" {
		return ma.base, nil
	}

	if cached, ok := ma.cache.Load(partnerID); ok {
		if entry, ok := cached.(*partnerEntry); ok && !entry.expired() {
			return entry.adapter, nil
		}
	}

	ma.mu.RLock()
	account, ok := ma.accounts[partnerID]
	ma.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown partner: %s", partnerID)
	}

	return ma.createPartnerAdapter(partnerID, account)
}

// AddPartner registers a partner account configuration.
func (ma *MultiAccountAdapter) AddPartner(partnerID string, account AccountConfig) {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	ma.accounts[partnerID] = account
}

// RemovePartner drops a partner and its cached adapter.
func (ma *MultiAccountAdapter) RemovePartner(partnerID string) {
	ma.mu.Lock()
	delete(ma.accounts, partnerID)
	ma.mu.Unlock()

	ma.cache.Delete(partnerID)
}

func (ma *MultiAccountAdapter) createPartnerAdapter(partnerID string, account AccountConfig) (*LambdaAdapter, error) {
	stsClient := sts.NewFromConfig(ma.baseConfig)

	duration := account.SessionDuration
	if duration == 0 {
		duration = time.Hour
	}

	creds := stscreds.NewAssumeRoleProvider(stsClient, account.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		o.ExternalID = &account.ExternalID
		o.RoleSessionName = fmt.Sprintf("strata-%s", partnerID)
		o.Duration = duration
	})

	region := account.Region
	if region == "" {
		region = lambdaRegion()
	}

	cfg := *session.DefaultConfig()
	cfg.Region = region
	if account.TableName != "" {
		cfg.TableName = account.TableName
	}
	cfg.CredentialsProvider = aws.NewCredentialsCache(creds)

	adapter, err := New(cfg, ma.partnerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create partner adapter for %s: %w", partnerID, err)
	}

	wrapped := &LambdaAdapter{
		Adapter:  adapter,
		isLambda: IsLambdaEnvironment(),
		memoryMB: LambdaMemoryMB(),
	}

	// Refresh five minutes before the credentials themselves expire.
	ma.cache.Store(partnerID, &partnerEntry{
		adapter: wrapped,
		expiry:  time.Now().Add(duration - 5*time.Minute),
		account: account,
	})
	return wrapped, nil
}

func (ma *MultiAccountAdapter) startCredentialRefresh() {
	ma.refreshTick = time.NewTicker(5 * time.Minute)

	go func() {
		for {
			select {
			case <-ma.refreshTick.C:
				ma.refreshExpiring()
			case <-ma.refreshStop:
				return
			}
		}
	}()
}

func (ma *MultiAccountAdapter) refreshExpiring() {
	now := time.Now()

	ma.cache.Range(func(key, value any) bool {
		partnerID := key.(string)
		entry := value.(*partnerEntry)

		if now.After(entry.expiry.Add(-10 * time.Minute)) {
			go func() {
				if _, err := ma.createPartnerAdapter(partnerID, entry.account); err != nil {
					ma.base.logger.Error("partner credential refresh failed",
						"partner", partnerID, "error", err)
				}
			}()
		}
		return true
	})
}

// Close stops the credential refresh loop.
func (ma *MultiAccountAdapter) Close() error {
	if ma.refreshTick != nil {
		ma.refreshTick.Stop()
	}
	close(ma.refreshStop)
	return nil
}

type partnerContextKey struct{}

// WithPartner tags a context with the partner id, making it available to
// hooks and log decoration downstream.
func WithPartner(ctx context.Context, partnerID string) context.Context {
	return context.WithValue(ctx, partnerContextKey{}, partnerID)
}

// PartnerFromContext returns the partner id set by WithPartner, or "".
func PartnerFromContext(ctx context.Context) string {
	if partnerID, ok := ctx.Value(partnerContextKey{}).(string); ok {
		return partnerID
	}
	return ""
}
