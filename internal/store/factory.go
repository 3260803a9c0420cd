package store

import "basegraph.co/distributor/core/db"

type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) SignalEvents() SignalEventStore {
	return newSignalEventStore(s.q)
}

func (s *Stores) Signals() SignalStore {
	return newSignalStore(s.q)
}

func (s *Stores) Audits() AuditStore {
	return newAuditStore(s.q)
}

func (s *Stores) InitialMappings() InitialMappingStore {
	return newInitialMappingStore(s.q)
}

func (s *Stores) AccountBalances() AccountBalanceStore {
	return newAccountBalanceStore(s.q)
}
