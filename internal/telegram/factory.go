package telegram

import (
	"fmt"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"gorm.io/gorm"

	"github.com/chatvault/chatvault/internal/config"
)

// ClientFactory is a function that creates a telegram client.
type ClientFactory func(cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error)

// NewPersistentClient creates a telegram client backed by the database for
// session storage. When TG_SESSION_STRING is set it seeds the session from
// the string instead, which is useful for first runs and containers without
// state.
func NewPersistentClient(cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
	var sessionConstructor sessionMaker.SessionConstructor
	if cfg.TGSessionStr != "" {
		sessionConstructor = sessionMaker.StringSession(cfg.TGSessionStr)
	} else {
		sessionConstructor = sessionMaker.SqlSession(db.Dialector)
	}

	clientOpts := &gotgproto.ClientOpts{
		Session:          sessionConstructor,
		DisableCopyright: true,
		InMemory:         cfg.TGSessionStr != "",
	}

	client, err := gotgproto.NewClient(
		cfg.TGApiID,
		cfg.TGApiHash,
		gotgproto.ClientTypePhone(""), // empty = use session
		clientOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}

	return client, nil
}
