package membership

import (
	"encoding/json"

	"daogov/storage"
)

// Forwarder is the narrow view of the NGE the gateway needs: a Receive-style
// hook carrying {sender, token_id, msg} (spec §4.5: "emits a Receive-style
// forward to gov_contract"). The gateway never interprets msg itself.
type Forwarder interface {
	ReceiveNFT(sender, tokenID string, msg json.RawMessage) error
}

// Gateway implements the Membership Token Gateway's external interface.
type Gateway struct {
	db        storage.Database
	forwarder Forwarder
}

// New constructs a Gateway over the given database and NGE forwarder.
func New(db storage.Database, forwarder Forwarder) *Gateway {
	return &Gateway{db: db, forwarder: forwarder}
}

// Instantiate records the owner and gov_contract principals.
func (g *Gateway) Instantiate(owner, govContract string) error {
	return saveConfig(g.db, Config{Owner: owner, GovContract: govContract})
}

// Config returns the gateway's administrative principals.
func (g *Gateway) Config() (Config, error) { return loadConfig(g.db) }

// Mint registers a new token id under owner, rejecting a duplicate id (spec
// §4.5: "mint (owner only, rejects duplicate token id → Claimed)").
func (g *Gateway) Mint(caller, tokenID, tokenOwner string) error {
	cfg, err := loadConfig(g.db)
	if err != nil {
		return err
	}
	if caller != cfg.Owner {
		return ErrUnauthorized
	}
	if _, claimed, err := ownerOf(g.db, tokenID); err != nil {
		return err
	} else if claimed {
		return ErrClaimed
	}
	return setOwner(g.db, tokenID, tokenOwner)
}

// Transfer reassigns a token id's owner (spec §4.5: "transfer (owner only)").
func (g *Gateway) Transfer(caller, tokenID, newOwner string) error {
	cfg, err := loadConfig(g.db)
	if err != nil {
		return err
	}
	if caller != cfg.Owner {
		return ErrUnauthorized
	}
	if _, claimed, err := ownerOf(g.db, tokenID); err != nil {
		return err
	} else if !claimed {
		return ErrTokenNotFound
	}
	return setOwner(g.db, tokenID, newOwner)
}

// ExecuteDAO forwards a token-holder's governance call to gov_contract (spec
// §4.5: "requires the caller to own the token, then emits a Receive-style
// forward... carrying {sender = caller_address, token_id, msg}").
func (g *Gateway) ExecuteDAO(caller, tokenID string, msg json.RawMessage) error {
	owner, claimed, err := ownerOf(g.db, tokenID)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrTokenNotFound
	}
	if owner != caller {
		return ErrNotTokenOwner
	}
	return g.forwarder.ReceiveNFT(caller, tokenID, msg)
}
