package ipc

import (
	"context"
	"time"

	"github.com/rrflink/sbcd/pkg/model"
)

// subscribeProcessor implements Subscribe mode: an initial resync,
// then either a repeated Full resend on every
// model wake or an accumulated structural Patch, batched by
// socketPollInterval.
type subscribeProcessor struct {
	store              *model.Store
	socketPollInterval time.Duration
}

// changeFunc adapts a plain function to model.Subscriber.
type changeFunc func(model.Change)

func (f changeFunc) OnChange(c model.Change) { f(c) }

func (p *subscribeProcessor) Process(ctx context.Context, conn *Connection, init ClientInitMessage) error {
	filters := make([]Filter, 0, len(init.Filters))
	for _, f := range init.Filters {
		filters = append(filters, ParseFilter(f))
	}

	mode := init.SubscriptionMode
	if mode == "" {
		mode = SubscriptionFull
	}

	if err := p.sendSnapshot(conn, filters); err != nil {
		return err
	}
	if err := awaitAck(conn); err != nil {
		return err
	}

	if mode == SubscriptionFull {
		return p.runFull(ctx, conn, filters)
	}
	return p.runPatch(ctx, conn, filters, init.Version)
}

func (p *subscribeProcessor) sendSnapshot(conn *Connection, filters []Filter) error {
	g := p.store.AccessReadOnly()
	tree := g.Tree()
	var payload interface{}
	if len(filters) == 0 {
		payload = tree
	} else {
		payload = filteredUnion(tree, filters)
	}
	g.Release()
	return conn.WriteLine(payload)
}

// filteredUnion returns the top-level modules that any filter's
// leading segment selects, matching by key or "**" wildcard.
func filteredUnion(tree map[string]interface{}, filters []Filter) map[string]interface{} {
	out := map[string]interface{}{}
	for key, value := range tree {
		if matchesTopLevel(filters, key) {
			out[key] = value
		}
	}
	return out
}

func matchesTopLevel(filters []Filter, key string) bool {
	for _, f := range filters {
		if len(f.segments) == 0 {
			continue
		}
		seg := f.segments[0]
		if seg.wildcard || (!seg.isArray && seg.key == key) {
			return true
		}
	}
	return false
}

// suppressJobLayersForOldClients strips the job module's layers array
// out of a patch change for clients below JobLayersArrayVersion: they
// still see it in a Full resync, but the incremental Patch stream
// never shapes it for them. Only the whole-module job change this
// store ever emits (ApplyObjectModel replaces "job" wholesale) needs
// this; anything else passes through untouched.
func suppressJobLayersForOldClients(c model.Change, clientVersion int) model.Change {
	if clientVersion >= JobLayersArrayVersion {
		return c
	}
	if len(c.Path) != 1 || c.Path[0].Kind != model.PathKey || c.Path[0].Key != "job" {
		return c
	}
	job, ok := c.Value.(map[string]interface{})
	if !ok || job["layers"] == nil {
		return c
	}
	stripped := make(map[string]interface{}, len(job))
	for k, v := range job {
		if k == "layers" {
			continue
		}
		stripped[k] = v
	}
	c.Value = stripped
	return c
}

func awaitAck(conn *Connection) error {
	var ack Acknowledge
	return conn.ReadLine(&ack)
}

func (p *subscribeProcessor) waitInterval() time.Duration {
	if p.socketPollInterval <= 0 {
		return 2 * time.Second
	}
	return p.socketPollInterval
}

func (p *subscribeProcessor) runFull(ctx context.Context, conn *Connection, filters []Filter) error {
	for {
		waitCtx, cancel := context.WithTimeout(ctx, p.waitInterval())
		err := p.store.WaitForUpdate(waitCtx)
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Timed out waiting for an update: confirm the peer is
			// still there and loop.
			if !conn.Probe() {
				return errPeerGone
			}
			continue
		}

		if err := p.sendSnapshot(conn, filters); err != nil {
			return err
		}
		if err := awaitAck(conn); err != nil {
			return err
		}
	}
}

func (p *subscribeProcessor) runPatch(ctx context.Context, conn *Connection, filters []Filter, clientVersion int) error {
	acc := model.NewPatchAccumulator()
	sub := changeFunc(func(c model.Change) {
		if len(filters) == 0 || MatchesAny(filters, c.Path) {
			acc.Add(suppressJobLayersForOldClients(c, clientVersion))
		}
	})
	p.store.Subscribe(sub)
	defer p.store.Unsubscribe(sub)

	for {
		waitCtx, cancel := context.WithTimeout(ctx, p.waitInterval())
		err := p.store.WaitForUpdate(waitCtx)
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if !conn.Probe() {
				return errPeerGone
			}
			continue
		}

		if acc.IsEmpty() {
			continue
		}
		patch := acc.TakePatch()
		if err := conn.WriteLine(patch); err != nil {
			return err
		}
		if err := awaitAck(conn); err != nil {
			return err
		}
	}
}
