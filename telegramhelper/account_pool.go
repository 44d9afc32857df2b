package telegramhelper

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/crawler"
	"github.com/rs/zerolog/log"
)

// AccountPool owns one TDLib client per account. An account's client is
// handed to at most one session at a time; independent sessions must not
// share a client.
type AccountPool struct {
	mu          sync.Mutex
	service     TelegramService
	sessionRoot string
	clients     map[string]crawler.TDLibClient // initialized clients, keyed by account
	inUse       map[string]bool
}

// NewAccountPool creates a pool whose account sessions live under
// "<storageRoot>/accounts/<account>".
func NewAccountPool(service TelegramService, storageRoot string) *AccountPool {
	return &AccountPool{
		service:     service,
		sessionRoot: filepath.Join(storageRoot, "accounts"),
		clients:     make(map[string]crawler.TDLibClient),
		inUse:       make(map[string]bool),
	}
}

// SessionDir returns the TDLib session directory for account.
func (p *AccountPool) SessionDir(account string) string {
	return filepath.Join(p.sessionRoot, account)
}

// Acquire returns the account's client, initializing it on first use. It
// fails when the account is already held by another session.
func (p *AccountPool) Acquire(account string) (crawler.TDLibClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inUse[account] {
		return nil, fmt.Errorf("account %s is already in use", account)
	}

	if c, ok := p.clients[account]; ok {
		p.inUse[account] = true
		log.Debug().Str("account", account).Msg("Reusing existing client from pool")
		return c, nil
	}

	c, err := p.service.InitializeClient(p.SessionDir(account))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize client for account %s: %w", account, err)
	}

	p.clients[account] = c
	p.inUse[account] = true
	log.Info().Str("account", account).Msg("Created new client in pool")
	return c, nil
}

// Release marks the account's client available again. The client stays open.
func (p *AccountPool) Release(account string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inUse[account] {
		log.Warn().Str("account", account).Msg("Attempted to release an account that is not in use")
		return
	}
	delete(p.inUse, account)
}

// Discard closes the account's client so that the next Acquire creates a
// fresh one.
func (p *AccountPool) Discard(account string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[account]; ok {
		log.Warn().Str("account", account).Msg("Discarding client")
		closeClientSafe(c)
		delete(p.clients, account)
	}
	delete(p.inUse, account)
}

// Close shuts down every client in the pool.
func (p *AccountPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for account, c := range p.clients {
		log.Debug().Str("account", account).Msg("Closing client")
		closeClientSafe(c)
	}
	p.clients = make(map[string]crawler.TDLibClient)
	p.inUse = make(map[string]bool)
}

// Stats returns counts of open and in-use clients.
func (p *AccountPool) Stats() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[string]int{
		"open":  len(p.clients),
		"inUse": len(p.inUse),
	}
}

// closeClientSafe closes a client, giving up after 5 seconds.
func closeClientSafe(c crawler.TDLibClient) {
	if c == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		if _, err := c.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing client connection")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Timeout waiting for client connection to close")
	}
}
