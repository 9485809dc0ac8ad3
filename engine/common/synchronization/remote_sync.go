package synchronization

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/ratelimit"
	"github.com/ledgerbft/node/network"
	"github.com/ledgerbft/node/storage"
	"github.com/ledgerbft/node/utils/logging"
)

// RemoteSyncHandler serves the ledger sync of other nodes from the committed
// ledger. Requests are throttled per requester.
type RemoteSyncHandler struct {
	log     zerolog.Logger
	config  Config
	ledger  storage.Ledger
	conduit network.Conduit
	limiter *ratelimit.RateLimiter
}

func NewRemoteSyncHandler(
	log zerolog.Logger,
	config Config,
	ledger storage.Ledger,
	conduit network.Conduit,
	dispatcher events.Dispatcher,
) (*RemoteSyncHandler, error) {
	limiter, err := ratelimit.NewRateLimiter(
		config.InboundRateLimit,
		config.InboundBurst,
		ratelimit.DefaultMaxPeers,
		ratelimit.WithGetTimeNowFunc(dispatcher.Now),
		ratelimit.WithLockoutDuration(config.InboundLockout),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create inbound rate limiter: %w", err)
	}
	return &RemoteSyncHandler{
		log:     log.With().Str("component", "remote_sync").Logger(),
		config:  config,
		ledger:  ledger,
		conduit: conduit,
		limiter: limiter,
	}, nil
}

// ProcessSyncRequest answers with the commands committed after the requested
// ledger state, or with an empty response if we are not ahead of it.
// No errors are expected during normal operations.
func (h *RemoteSyncHandler) ProcessSyncRequest(originID flow.Identifier, req *messages.SyncRequest) error {
	log := h.log.With().
		Hex("origin_id", logging.ID(originID)).
		Uint64("from_epoch", req.FromEpoch).
		Uint64("from_height", req.FromHeight).
		Logger()
	if !h.limiter.Allow(originID) {
		log.Debug().Msg("dropping throttled sync request")
		return nil
	}

	resp := &messages.SyncResponse{Nonce: req.Nonce}
	batch, err := h.ledger.CommandsAndProofAfter(req.From(), h.config.MaxBatchSize)
	if errors.Is(err, storage.ErrNotFound) {
		log.Debug().Msg("nothing to serve above requested state")
	} else if err != nil {
		return fmt.Errorf("could not load commands after height %d: %w", req.FromHeight, err)
	} else {
		resp.CommandsAndProof = *batch
	}

	err = h.conduit.Unicast(resp, originID)
	if err != nil {
		log.Warn().Err(err).Msg("could not send sync response")
		return nil
	}
	log.Debug().Int("commands", len(resp.CommandsAndProof.Commands)).Msg("sync request answered")
	return nil
}

// ProcessStatusRequest answers with the proof of our latest committed ledger
// state, nil if nothing was committed yet.
// No errors are expected during normal operations.
func (h *RemoteSyncHandler) ProcessStatusRequest(originID flow.Identifier, req *messages.StatusRequest) error {
	if !h.limiter.Allow(originID) {
		h.log.Debug().Hex("origin_id", logging.ID(originID)).Msg("dropping throttled status request")
		return nil
	}

	proof, err := h.ledger.LastProof()
	if errors.Is(err, storage.ErrNotFound) {
		proof = nil
	} else if err != nil {
		return fmt.Errorf("could not load last committed proof: %w", err)
	}

	err = h.conduit.Unicast(&messages.StatusResponse{Nonce: req.Nonce, Proof: proof}, originID)
	if err != nil {
		h.log.Warn().Err(err).Hex("origin_id", logging.ID(originID)).Msg("could not send status response")
	}
	return nil
}
