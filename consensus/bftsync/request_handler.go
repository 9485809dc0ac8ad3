package bftsync

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ledgerbft/node/consensus/hotstuff"
	"github.com/ledgerbft/node/model/flow"
	"github.com/ledgerbft/node/model/messages"
	"github.com/ledgerbft/node/module"
	"github.com/ledgerbft/node/module/events"
	"github.com/ledgerbft/node/module/ratelimit"
	"github.com/ledgerbft/node/network"
	"github.com/ledgerbft/node/utils/logging"
)

// RequestHandler serves GetVerticesRequests of other nodes from the vertex
// store. Requests are throttled per requester; requests over the limit are
// dropped without an answer and the requester's own timeout takes over.
type RequestHandler struct {
	log     zerolog.Logger
	config  Config
	store   hotstuff.VertexStore
	conduit network.Conduit
	limiter *ratelimit.RateLimiter
	metrics module.VertexSyncMetrics
}

// NewRequestHandler creates a request handler serving the store's vertices.
func NewRequestHandler(
	log zerolog.Logger,
	config Config,
	store hotstuff.VertexStore,
	conduit network.Conduit,
	dispatcher events.Dispatcher,
	metrics module.VertexSyncMetrics,
) (*RequestHandler, error) {
	limiter, err := ratelimit.NewRateLimiter(
		config.InboundRateLimit,
		config.InboundBurst,
		ratelimit.DefaultMaxPeers,
		ratelimit.WithGetTimeNowFunc(dispatcher.Now),
		ratelimit.WithLockoutDuration(config.RateLimitLockout),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create inbound rate limiter: %w", err)
	}
	return &RequestHandler{
		log:     log.With().Str("component", "vertex_request_handler").Uint64("epoch", store.Epoch()).Logger(),
		config:  config,
		store:   store,
		conduit: conduit,
		limiter: limiter,
		metrics: metrics,
	}, nil
}

// ProcessGetVerticesRequest answers with the requested vertices, or with our
// certificates if we do not hold all of them.
// No errors are expected during normal operations.
func (h *RequestHandler) ProcessGetVerticesRequest(originID flow.Identifier, req *messages.GetVerticesRequest) error {
	log := h.log.With().
		Hex("origin_id", logging.ID(originID)).
		Hex("vertex_id", logging.ID(req.VertexID)).
		Uint32("count", req.Count).
		Logger()

	if !h.limiter.Allow(originID) {
		h.metrics.InboundVertexRequestThrottled()
		log.Debug().Msg("dropping throttled vertex request")
		return nil
	}
	if req.Count == 0 || req.Count > h.config.MaxResponseSize {
		log.Warn().Bool(logging.KeySuspicious, true).Msg("dropping vertex request of invalid size")
		return nil
	}

	vertices := h.store.GetVertices(req.VertexID, req.Count)
	var response interface{}
	if len(vertices) == 0 {
		response = &messages.GetVerticesErrorResponse{HighQC: h.store.HighQC(), Request: *req}
	} else {
		response = &messages.GetVerticesResponse{Vertices: vertices}
	}
	err := h.conduit.Unicast(response, originID)
	if err != nil {
		log.Warn().Err(err).Msg("could not send vertex response")
		return nil
	}
	log.Debug().Int("vertices", len(vertices)).Msg("vertex request answered")
	return nil
}
