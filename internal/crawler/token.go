package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tokengraph/transfer-indexer/internal/solscan"
	"github.com/tokengraph/transfer-indexer/pkg/checkpoint"
)

// placeholderName is used for the token name when metadata could not be
// fetched and the crawl runs in degraded mode.
const placeholderName = "unknown"

// Token is the token context of a crawl: the token itself, the minter account
// the BFS is rooted at, and the minting time that anchors the fetch window.
type Token struct {
	Address  string `json:"address"`
	Minter   string `json:"minter"`
	MintTime int64  `json:"mint_time"`
	Name     string `json:"name"`
	Image    string `json:"image"`
}

// MetadataSource is the token-metadata collaborator.
type MetadataSource interface {
	TokenMeta(ctx context.Context, tokenAddress string) (solscan.TokenMeta, error)
}

// ResolveToken builds the token context for a crawl. It asks the metadata
// collaborator first; when that fails but a depth-0 checkpoint exists, it
// recovers the minter from the persisted root and continues in degraded mode
// with a placeholder name and a zero minting time. With no checkpoint to fall
// back on, the metadata error is fatal.
//
// The zero minting time of the degraded path collapses the fetch window of
// any later real fetch to [-24h, +24h] around the epoch, so such a run is
// only useful for retracing already-checkpointed depths.
func ResolveToken(
	ctx context.Context,
	source MetadataSource,
	store checkpoint.Store,
	tokenAddress string,
	log *zap.SugaredLogger,
) (Token, error) {
	meta, err := source.TokenMeta(ctx, tokenAddress)
	if err == nil {
		return Token{
			Address:  tokenAddress,
			Minter:   meta.Creator,
			MintTime: meta.CreatedTime,
			Name:     meta.Name,
			Image:    meta.Image,
		}, nil
	}

	exists, existsErr := store.Exists(ctx, 0)
	if existsErr != nil {
		return Token{}, fmt.Errorf("token metadata unavailable and checkpoint probe failed: %w", existsErr)
	}
	if !exists {
		return Token{}, fmt.Errorf("resolve token %s: %w", tokenAddress, err)
	}

	root, _, readErr := store.Read(ctx, 0)
	if readErr != nil {
		return Token{}, fmt.Errorf("token metadata unavailable and depth-0 checkpoint unreadable: %w", readErr)
	}

	log.Warnw("token metadata unavailable, recovered minter from depth-0 checkpoint; "+
		"running degraded with zero minting time",
		"token", tokenAddress,
		"minter", root.Address,
		"error", err,
	)

	return Token{
		Address:  tokenAddress,
		Minter:   root.Address,
		MintTime: 0,
		Name:     placeholderName,
		Image:    "",
	}, nil
}
