package qdq

import (
	"fmt"
	"sort"

	"github.com/samcharles93/qdqconf/internal/graph"
	"github.com/samcharles93/qdqconf/internal/logger"
	"github.com/samcharles93/qdqconf/internal/overrides"
	"github.com/samcharles93/qdqconf/pkg/quant"
)

// consumerRequest is a group of nodes that all want a tensor delivered at
// the same type.
type consumerRequest struct {
	qtype quant.Type
	nodes *overrides.NodeSet
}

// typeRequest collects what is asked of one tensor: the type its producer
// must emit, and the type some of its consumers must read.
type typeRequest struct {
	producerType *quant.Type
	consumers    *consumerRequest
}

type typeRequests struct {
	order  []string
	byName map[string]*typeRequest
}

func (r *typeRequests) get(tensor string) *typeRequest {
	if req, ok := r.byName[tensor]; ok {
		return req
	}
	req := &typeRequest{}
	r.byName[tensor] = req
	r.order = append(r.order, tensor)
	return req
}

// resolver reconciles the single stored type of every tensor with what
// its producer and consumers ask for, adding convert directives where the
// two disagree.
type resolver struct {
	store          *overrides.Store
	idx            *graph.Index
	activationType quant.Type
	log            logger.Logger
}

// addTypeConverts runs both phases and leaves the store with the minimal
// set of converts. On error the store is in an undefined state.
func addTypeConverts(store *overrides.Store, idx *graph.Index, activationType quant.Type, log logger.Logger) error {
	r := &resolver{store: store, idx: idx, activationType: activationType, log: log}
	reqs, err := r.collect()
	if err != nil {
		return err
	}
	for _, tensor := range reqs.order {
		if err := r.reconcile(tensor, reqs.byName[tensor]); err != nil {
			return err
		}
	}
	return nil
}

// collect scans overridden activations in graph order. An activation
// whose type differs from the default asks its producer for that type and
// asks each of the producer's activation inputs to be read at it.
func (r *resolver) collect() (*typeRequests, error) {
	reqs := &typeRequests{byName: make(map[string]*typeRequest)}
	table := r.store.Table()

	for _, tensor := range r.tensorOrder(table) {
		if !r.idx.IsQuantizable(tensor) || r.idx.IsInitializer(tensor) {
			continue
		}
		e, ok, err := r.store.Lookup(tensor)
		if err != nil {
			return nil, err
		}
		if !ok || e.Convert != nil {
			continue
		}
		qtype := e.TypeOr(r.activationType)
		if qtype == r.activationType {
			continue
		}

		req := reqs.get(tensor)
		if req.producerType != nil && *req.producerType != qtype {
			return nil, overrides.Conflictf(tensor, "producer asked for both %v and %v", *req.producerType, qtype)
		}
		req.producerType = &qtype

		node, ok := r.idx.Producer(tensor)
		if !ok {
			// Graph inputs have nothing upstream to ask.
			continue
		}
		for _, in := range node.Inputs {
			if in == "" || r.idx.IsInitializer(in) || !r.idx.IsQuantizable(in) {
				continue
			}
			inReq := reqs.get(in)
			if inReq.consumers == nil {
				inReq.consumers = &consumerRequest{qtype: qtype, nodes: overrides.NewNodeSet()}
			}
			if inReq.consumers.qtype != qtype {
				return nil, overrides.Conflictf(in, "consumers %v want %v but %q wants %v",
					inReq.consumers.nodes.Values(), inReq.consumers.qtype, node.Name, qtype)
			}
			inReq.consumers.nodes.Add(node.Name)
		}
	}
	return reqs, nil
}

func (r *resolver) reconcile(tensor string, req *typeRequest) error {
	switch {
	case req.producerType != nil && req.consumers == nil:
		// Produced at a non-default type that nobody downstream asked for:
		// hand every consumer the default type.
		r.log.Debug("converting back to activation type", "tensor", tensor,
			"produced", *req.producerType, "to", r.activationType)
		return r.store.SetConvertAll(tensor, r.activationType)

	case req.producerType == nil:
		produced, err := r.store.OutputType(tensor, r.activationType)
		if err != nil {
			return err
		}
		want := req.consumers.qtype
		if produced != want {
			return r.store.AddConvert(tensor, produced, want, req.consumers.nodes)
		}
		conflict, err := r.store.HasConvertConflict(tensor, req.consumers.nodes)
		if err != nil {
			return err
		}
		if conflict {
			return overrides.Conflictf(tensor, "an existing convert moves consumers %v away from %v, which they need",
				req.consumers.nodes.Values(), want)
		}
		return nil

	default:
		produced := *req.producerType
		want := req.consumers.qtype
		if produced != want {
			return r.store.AddConvert(tensor, produced, want, req.consumers.nodes)
		}

		all := overrides.NewNodeSet()
		for _, n := range r.idx.Consumers(tensor) {
			all.Add(n.Name)
		}
		rest := all.Difference(req.consumers.nodes)
		if rest.Len() == 0 {
			e, _, err := r.store.Lookup(tensor)
			if err != nil {
				return err
			}
			if e != nil && e.Convert != nil {
				panic(fmt.Sprintf("qdq: tensor %q: unexpected convert on a tensor every consumer reads natively", tensor))
			}
			return nil
		}
		// Consumers that did not ask for the override get the default type.
		return r.store.AddConvert(tensor, produced, r.activationType, rest)
	}
}

// tensorOrder lists the table's tensors in graph order; names the graph
// does not know come last, sorted.
func (r *resolver) tensorOrder(table overrides.Table) []string {
	names := table.Names()
	sort.SliceStable(names, func(i, j int) bool {
		pi, iok := r.idx.Position(names[i])
		pj, jok := r.idx.Position(names[j])
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return false
		}
	})
	return names
}
