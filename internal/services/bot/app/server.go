// Package server wires the bot runtime and update loop lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/earnpro/referralpro/internal/services/bot"
	"github.com/earnpro/referralpro/internal/services/bot/telegram"
	"github.com/earnpro/referralpro/internal/services/referral/domain"
	referralsqlite "github.com/earnpro/referralpro/internal/services/referral/storage/sqlite"
)

// Config holds the bot runtime configuration.
type Config struct {
	Token      string
	ChannelID  int64
	ChannelURL string
	AdminIDs   []int64
	DBPath     string
}

// Server hosts the Telegram update loop and storage lifecycle.
type Server struct {
	client  *telegram.Client
	store   *referralsqlite.Store
	handler *bot.Handler
}

// New creates a configured bot server.
func New(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.ChannelURL) == "" {
		return nil, fmt.Errorf("channel url is required")
	}
	dbPath := strings.TrimSpace(cfg.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join("data", "referral.db")
	}
	store, err := referralsqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open referral store: %w", err)
	}
	client, err := telegram.New(cfg.Token, cfg.ChannelID)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	engine := domain.NewEngine(store, client)
	handler := bot.NewHandler(engine, client, cfg.ChannelID, cfg.ChannelURL, cfg.AdminIDs)
	return &Server{
		client:  client,
		store:   store,
		handler: handler,
	}, nil
}

// Run creates and serves a bot server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve consumes Telegram updates until context cancellation. Updates are
// handled sequentially; ordering matters for membership events.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("bot @%s polling for updates", s.client.BotUsername())
	updates := s.client.Updates()
	for {
		select {
		case <-ctx.Done():
			s.client.StopUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			s.handler.HandleUpdate(ctx, update)
		}
	}
}

// Close releases bot server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.client != nil {
		s.client.StopUpdates()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}
