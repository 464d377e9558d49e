// Package tokenbucket throttles calls to the upstream model. Tokens refill
// in batches; consumers are spread out more as the bucket drains.
package tokenbucket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrStopped = errors.New("token bucket stopped")

type ProductionRule struct {
	Interval  time.Duration
	Increment int
}

func (p *ProductionRule) validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("interval must be greater than 0")
	}
	if p.Increment <= 0 {
		return fmt.Errorf("increment must be greater than 0")
	}
	return nil
}

// ConsumptionRule applies while at least Threshold tokens remain. Rules are
// checked in order, so list them by descending Threshold.
type ConsumptionRule struct {
	Threshold int
	// Wait caps the spacing enforced between two consumptions.
	Wait   time.Duration
	RuleID int
}

// DefaultRules spreads calls out progressively as a bucket of size max
// empties.
func DefaultRules(max int) []ConsumptionRule {
	return []ConsumptionRule{
		{Threshold: max * 2 / 3, Wait: 0, RuleID: 1},
		{Threshold: max / 2, Wait: 100 * time.Millisecond, RuleID: 2},
		{Threshold: max / 3, Wait: 500 * time.Millisecond, RuleID: 3},
		{Threshold: max / 6, Wait: 2 * time.Second, RuleID: 4},
		{Threshold: 0, Wait: 3 * time.Second, RuleID: 5},
	}
}

type AdaptiveTokenBucket struct {
	mu            sync.Mutex
	maxTokens     int
	currTokens    int
	lastTs        time.Time
	nextProduceTs time.Time
	prodRule      ProductionRule
	consRules     []ConsumptionRule
	produceCh     chan struct{}
	stopCh        chan struct{}
	stopOnce      sync.Once
}

func New(maxTokens int, initialTokens int, prodRule ProductionRule, consRules []ConsumptionRule) (*AdaptiveTokenBucket, error) {
	if err := prodRule.validate(); err != nil {
		return nil, fmt.Errorf("invalid production rule: %w", err)
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("maxTokens must be greater than 0")
	}
	if initialTokens > maxTokens {
		initialTokens = maxTokens
	}
	bucket := &AdaptiveTokenBucket{
		maxTokens:     maxTokens,
		currTokens:    initialTokens,
		nextProduceTs: time.Now().Add(prodRule.Interval),
		prodRule:      prodRule,
		consRules:     consRules,
		produceCh:     make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}
	go bucket.produceLoop()
	return bucket, nil
}

// NewPerMinute returns a full bucket of maxTokens refilled by perMinute
// tokens every minute, using DefaultRules.
func NewPerMinute(maxTokens, perMinute int) (*AdaptiveTokenBucket, error) {
	return New(maxTokens, maxTokens, ProductionRule{
		Interval:  time.Minute,
		Increment: perMinute,
	}, DefaultRules(maxTokens))
}

func (b *AdaptiveTokenBucket) produce() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currTokens += b.prodRule.Increment
	if b.currTokens > b.maxTokens {
		b.currTokens = b.maxTokens
	}
	b.nextProduceTs = time.Now().Add(b.prodRule.Interval)
}

func (b *AdaptiveTokenBucket) produceLoop() {
	ticker := time.NewTicker(b.prodRule.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.produce()
			select {
			case b.produceCh <- struct{}{}:
			default:
			}
		}
	}
}

// Consume blocks until a token is taken, ctx is done or the bucket stops.
// It returns the ID of the rule that was in effect.
func (b *AdaptiveTokenBucket) Consume(ctx context.Context) (ruleID int, err error) {
	for {
		consumed, noToken, wait, ruleID := b.tryConsume()
		if consumed {
			return ruleID, nil
		}
		if noToken {
			select {
			case <-b.produceCh:
				// pass the signal on so the next waiter wakes too
				select {
				case b.produceCh <- struct{}{}:
				default:
				}
				continue
			case <-b.stopCh:
				return 0, ErrStopped
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
				continue
			case <-b.stopCh:
				timer.Stop()
				return 0, ErrStopped
			case <-ctx.Done():
				timer.Stop()
				return 0, ctx.Err()
			}
		}
	}
}

func (b *AdaptiveTokenBucket) tryConsume() (consumed bool, noToken bool, wait time.Duration, ruleID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	curr := b.currTokens
	if curr == 0 {
		return false, true, 0, 0
	}
	ruleID = -1
	for _, rule := range b.consRules {
		if curr < rule.Threshold {
			continue
		}
		elapsed := time.Since(b.lastTs)
		wait = time.Until(b.nextProduceTs) / time.Duration(curr)
		if wait < 0 {
			wait = 0
		}
		if wait > rule.Wait {
			wait = rule.Wait
		}
		if elapsed < wait {
			return false, false, wait - elapsed, 0
		}
		ruleID = rule.RuleID
		break
	}
	b.currTokens--
	b.lastTs = time.Now()
	return true, false, 0, ruleID
}

// Available returns the number of tokens currently in the bucket.
func (b *AdaptiveTokenBucket) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currTokens
}

func (b *AdaptiveTokenBucket) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}
