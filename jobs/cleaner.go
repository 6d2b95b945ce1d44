// Package jobs runs scheduled maintenance on the order pool.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"fleetkernel/archive"
	"fleetkernel/config"
	"fleetkernel/kernel"
	"fleetkernel/order"
	"fleetkernel/store"
)

// Pool is the part of the kernel pool the cleaner works on.
type Pool interface {
	TransportOrder(name string) (*order.TransportOrder, error)
	TransportOrders(filter kernel.OrderFilter) []*order.TransportOrder
	OrderSequences() []*order.OrderSequence
	OrderSequence(name string) (*order.OrderSequence, error)
	DeleteTransportOrder(name string) error
	DeleteOrderSequence(name string) error
}

// Result counts what one cleaner run removed.
type Result struct {
	Orders    int
	Sequences int
	Outbox    int64
}

// Cleaner removes old final orders and finished sequences from the pool on
// a cron schedule. Removed orders are archived first when an archive is set.
type Cleaner struct {
	pool    Pool
	db      *store.DB
	archive archive.Store
	cfg     config.CleanerConfig
	cron    *cron.Cron
	now     func() time.Time
}

// NewCleaner creates a cleaner. archive may be nil.
func NewCleaner(pool Pool, db *store.DB, arch archive.Store, cfg config.CleanerConfig) *Cleaner {
	return &Cleaner{
		pool:    pool,
		db:      db,
		archive: arch,
		cfg:     cfg,
		cron:    cron.New(),
		now:     time.Now,
	}
}

// Start schedules RunOnce on the configured cron spec.
func (c *Cleaner) Start() error {
	_, err := c.cron.AddFunc(c.cfg.Schedule, func() {
		res, err := c.RunOnce(context.Background())
		if err != nil {
			log.Printf("cleaner: run failed: %v", err)
			return
		}
		if res.Orders > 0 || res.Sequences > 0 || res.Outbox > 0 {
			log.Printf("cleaner: removed %d orders, %d sequences, %d outbox messages", res.Orders, res.Sequences, res.Outbox)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cleaner %q: %w", c.cfg.Schedule, err)
	}
	c.cron.Start()
	log.Printf("cleaner: started (%s, retention %s)", c.cfg.Schedule, c.cfg.Retention)
	return nil
}

// Stop waits for a running cleanup to finish.
func (c *Cleaner) Stop() {
	<-c.cron.Stop().Done()
	log.Printf("cleaner: stopped")
}

// RunOnce performs one cleanup pass.
func (c *Cleaner) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	now := c.now()

	rows, err := c.db.ListFinishedOrdersBefore(now.Add(-c.cfg.Retention))
	if err != nil {
		return res, fmt.Errorf("list finished orders: %w", err)
	}
	if len(rows) > 0 {
		needed := c.pendingDependencies()
		for _, row := range rows {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if c.removeOrder(ctx, row.Name, needed) {
				res.Orders++
			}
		}
	}

	for _, seq := range c.pool.OrderSequences() {
		if !seq.IsFinished() || !c.membersGone(seq) {
			continue
		}
		if err := c.pool.DeleteOrderSequence(seq.Name()); err != nil {
			log.Printf("cleaner: remove sequence %s: %v", seq.Name(), err)
			continue
		}
		res.Sequences++
	}

	if c.cfg.OutboxRetention > 0 {
		n, err := c.db.PurgeSentOutbox(now.Add(-c.cfg.OutboxRetention))
		if err != nil {
			return res, fmt.Errorf("purge outbox: %w", err)
		}
		res.Outbox = n
	}
	return res, nil
}

// pendingDependencies collects the orders some non-final order still
// depends on.
func (c *Cleaner) pendingDependencies() map[string]bool {
	needed := make(map[string]bool)
	live := c.pool.TransportOrders(func(o *order.TransportOrder) bool { return !o.State().IsFinal() })
	for _, o := range live {
		for _, d := range o.Dependencies() {
			needed[d] = true
		}
	}
	return needed
}

func (c *Cleaner) removeOrder(ctx context.Context, name string, needed map[string]bool) bool {
	o, err := c.pool.TransportOrder(name)
	if err != nil || !o.State().IsFinal() || needed[name] {
		return false
	}
	if seqName := o.WrappingSequence(); seqName != "" {
		if seq, err := c.pool.OrderSequence(seqName); err == nil && !seq.IsFinished() {
			return false
		}
	}
	if c.archive != nil {
		data, err := c.db.OrderSnapshotJSON(name)
		if err != nil {
			log.Printf("cleaner: snapshot of %s: %v", name, err)
			return false
		}
		if err := c.archive.Put(ctx, archive.OrderKey(name), data); err != nil {
			log.Printf("cleaner: archive %s: %v", name, err)
			return false
		}
	}
	if err := c.pool.DeleteTransportOrder(name); err != nil {
		log.Printf("cleaner: remove %s: %v", name, err)
		return false
	}
	return true
}

func (c *Cleaner) membersGone(seq *order.OrderSequence) bool {
	for _, name := range seq.Orders() {
		if _, err := c.pool.TransportOrder(name); err == nil {
			return false
		}
	}
	return true
}
