// Package dispatch owns the method table that routes an inbound RPC
// request to its handler, enforces the access-token gate, and runs every
// method-specific precondition/side-effect/notify sequence against the
// subscription index and storage façade.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chenyukaola/feeds-service/internal/authcore"
	"github.com/chenyukaola/feeds-service/internal/errs"
	"github.com/chenyukaola/feeds-service/internal/limiter"
	"github.com/chenyukaola/feeds-service/internal/model"
	"github.com/chenyukaola/feeds-service/internal/notify"
	"github.com/chenyukaola/feeds-service/internal/storage"
	"github.com/chenyukaola/feeds-service/internal/subsidx"
	"github.com/chenyukaola/feeds-service/internal/transport"
)

// Accessibility is the gate a method's handler runs behind.
type Accessibility int

const (
	// Anyone requires no access token.
	Anyone Accessibility = iota
	// Authenticated requires a valid access token.
	Authenticated
	// Owner requires a valid access token whose uid matches the deployment owner.
	Owner
)

// Stores bundles the persistence dependencies the dispatcher's handlers
// call into. It is a plain struct rather than a single fat interface so
// each handler only names the stores it actually touches.
type Stores struct {
	Channels      storage.ChannelStore
	Posts         storage.PostStore
	Comments      storage.CommentStore
	Likes         storage.LikeStore
	Subscriptions storage.SubscriptionStore
}

// Default payload size caps applied when Config leaves them unset.
const (
	DefaultMaxAvatarBytes  = 256 * 1024
	DefaultMaxContentBytes = 1 << 20
)

// Config holds the dispatcher's deployment-specific constants.
type Config struct {
	ServerDID       string
	OwnerDID        string
	PostIDStart     uint64
	MaxAvatarBytes  int
	MaxContentBytes int
}

type handlerFunc func(ctx context.Context, d *Dispatcher, nodeID string, req transport.Request, uinfo model.UserInfo) error

type methodEntry struct {
	handler     handlerFunc
	access      Accessibility
	rateLimited bool
}

// Dispatcher is the "Feeds Core" aggregate: the single object holding
// every piece of global server state (the subscription index, the auth
// core, the method table) plus references to its external collaborators.
// It is constructed once at startup and is not safe for concurrent use —
// the single-threaded dispatch model is the whole point.
type Dispatcher struct {
	cfg      Config
	ownerUID string
	ready    bool

	auth    *authcore.Core
	idx     *subsidx.Index
	stores  Stores
	fan     *notify.Fanout
	marshal transport.Marshaler
	limiter limiter.Limiter
	logger  *zap.Logger

	methods map[string]methodEntry
}

// New constructs a Dispatcher and wires its fixed method table.
// SetReady(true) must be called once the server DID is fully provisioned (its signing
// key unsealed, its document cached) before Handle will do any work.
func New(cfg Config, auth *authcore.Core, idx *subsidx.Index, stores Stores, fan *notify.Fanout, marshal transport.Marshaler, lim limiter.Limiter, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PostIDStart == 0 {
		cfg.PostIDStart = 1
	}
	if cfg.MaxAvatarBytes <= 0 {
		cfg.MaxAvatarBytes = DefaultMaxAvatarBytes
	}
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = DefaultMaxContentBytes
	}
	d := &Dispatcher{
		cfg:      cfg,
		ownerUID: authcore.DeriveUID(cfg.OwnerDID),
		auth:     auth,
		idx:      idx,
		stores:   stores,
		fan:      fan,
		marshal:  marshal,
		limiter:  lim,
		logger:   logger,
	}
	d.methods = map[string]methodEntry{
		"sign_in":                 {handler: handleSignIn, access: Anyone, rateLimited: true},
		"did_auth":                {handler: handleDidAuth, access: Anyone, rateLimited: true},
		"create_channel":          {handler: handleCreateChannel, access: Owner},
		"publish_post":            {handler: handlePublishPost, access: Owner},
		"post_comment":            {handler: handlePostComment, access: Authenticated},
		"post_like":               {handler: handlePostLike, access: Authenticated},
		"post_unlike":             {handler: handlePostUnlike, access: Authenticated},
		"subscribe_channel":       {handler: handleSubscribeChannel, access: Authenticated},
		"unsubscribe_channel":     {handler: handleUnsubscribeChannel, access: Authenticated},
		"enable_notification":     {handler: handleEnableNotification, access: Authenticated},
		"get_my_channels":         {handler: handleGetMyChannels, access: Owner},
		"get_my_channels_meta":    {handler: handleGetMyChannelsMeta, access: Owner},
		"get_channels":            {handler: handleGetChannels, access: Authenticated},
		"get_channel_detail":      {handler: handleGetChannelDetail, access: Authenticated},
		"get_subscribed_channels": {handler: handleGetSubscribedChannels, access: Authenticated},
		"get_posts":               {handler: handleGetPosts, access: Authenticated},
		"get_liked_posts":         {handler: handleGetLikedPosts, access: Authenticated},
		"get_comments":            {handler: handleGetComments, access: Authenticated},
		"get_statistics":          {handler: handleGetStatistics, access: Authenticated},
	}
	return d
}

// SetReady flips the "server DID is provisioned" gate. Before it is set,
// Handle drops every request silently, per the retry-tolerant contract
// unauthenticated and authenticated callers both rely on.
func (d *Dispatcher) SetReady(ready bool) { d.ready = ready }

// ActiveConnections reports the number of currently-registered active
// subscribers, used by get_statistics.
func (d *Dispatcher) ActiveConnections() int { return d.idx.ActiveSuberCount() }

// Disconnect releases every index entry owned by nodeID. Call on
// transport disconnect.
func (d *Dispatcher) Disconnect(nodeID string) { d.idx.DeactivateSuber(nodeID) }

// tokenParams extracts just the bearer token field shared by every
// authenticated/owner request; the full method-specific params are
// unmarshalled separately by each handler.
type tokenParams struct {
	Tk string `json:"tk"`
}

// Handle runs the general six-step handler shape: readiness gate, access
// gate, ownership gate, then hands off to the method's handler. Handlers
// run preconditions, storage mutations, in-memory updates, the success
// response, and notifications themselves — the shape differs too much
// per method past the gates to factor further.
func (d *Dispatcher) Handle(ctx context.Context, nodeID string, req transport.Request) error {
	if !d.ready {
		return nil
	}
	entry, ok := d.methods[req.Method]
	if !ok {
		return d.fan.SendError(ctx, nodeID, req.TsxID, int(errs.ECInternalError))
	}

	var uinfo model.UserInfo
	if entry.access != Anyone {
		var tp tokenParams
		var err error
		if err = d.marshal.UnmarshalParams(req.Params, &tp); err == nil {
			uinfo, err = d.auth.VerifyAccessToken(tp.Tk)
		}
		if err != nil {
			return d.fan.SendError(ctx, nodeID, req.TsxID, int(errs.ECAccessTokenExp))
		}
	}
	if entry.access == Owner && uinfo.UID != d.ownerUID {
		return d.fan.SendError(ctx, nodeID, req.TsxID, int(errs.ECNotAuthorized))
	}

	var nodeHash []byte
	if entry.rateLimited && d.limiter != nil {
		nodeHash = limiter.HashNodeID(nodeID)
		allowed, retryAfter, err := d.limiter.Allow(ctx, req.Method, nodeHash)
		if err != nil {
			d.logger.Warn("dispatch: rate limiter unavailable", zap.Error(err))
		} else if !allowed {
			d.logger.Info("dispatch: rate limited", zap.String("method", req.Method), zap.Duration("retry_after", retryAfter))
			return d.fan.SendError(ctx, nodeID, req.TsxID, int(errs.ECNotAuthorized))
		}
	}

	err := entry.handler(ctx, d, nodeID, req, uinfo)
	if entry.rateLimited && d.limiter != nil {
		if err != nil {
			if _, _, lerr := d.limiter.Failure(ctx, req.Method, nodeHash); lerr != nil {
				d.logger.Warn("dispatch: record rate limiter failure", zap.Error(lerr))
			}
		} else if lerr := d.limiter.Success(ctx, req.Method, nodeHash); lerr != nil {
			d.logger.Warn("dispatch: reset rate limiter", zap.Error(lerr))
		}
	}
	if err != nil {
		d.logger.Warn("dispatch: handler error", zap.String("method", req.Method), zap.Error(err))
		return d.fan.SendError(ctx, nodeID, req.TsxID, int(errs.CodeFor(err)))
	}
	return nil
}

func (d *Dispatcher) unmarshalParams(req transport.Request, v any) error {
	if err := d.marshal.UnmarshalParams(req.Params, v); err != nil {
		return fmt.Errorf("dispatch: unmarshal params for %s: %w", req.Method, errs.ErrInternal)
	}
	return nil
}

func now() time.Time { return time.Now() }
