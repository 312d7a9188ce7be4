package alias

import (
	"log/slog"

	"github.com/wrightlabs/gamewright/internal/mutate"
	"github.com/wrightlabs/gamewright/internal/state"
)

// Expansion is a batch rewritten into concrete participant ids.
type Expansion struct {
	// Ops are the concrete ops, wildcards and setForAllParticipants
	// fanned out one op per bound participant in sorted alias order.
	Ops []mutate.Op

	// Origin maps each expanded op back to the index of the op it came
	// from in the submitted batch, so execution errors can point the
	// retry loop at the offending source op.
	Origin []int
}

// Expand rewrites a batch's alias-addressed paths into concrete
// participant ids. An unknown alias passes through untouched with a
// warning; it then reads as an ordinary (likely absent) participant key
// downstream rather than killing the batch.
func Expand(ops []mutate.Op, m Map, logger *slog.Logger) Expansion {
	if logger == nil {
		logger = slog.Default()
	}

	var exp Expansion
	add := func(origin int, out ...mutate.Op) {
		for _, op := range out {
			exp.Ops = append(exp.Ops, op)
			exp.Origin = append(exp.Origin, origin)
		}
	}

	for i, op := range ops {
		switch o := op.(type) {
		case mutate.Set:
			add(i, expandSingle(o.Path, m, logger, func(p state.Path) mutate.Op {
				return mutate.Set{Path: p, Value: o.Value}
			})...)

		case mutate.Increment:
			add(i, expandSingle(o.Path, m, logger, func(p state.Path) mutate.Op {
				return mutate.Increment{Path: p, Amount: o.Amount}
			})...)

		case mutate.Append:
			add(i, expandSingle(o.Path, m, logger, func(p state.Path) mutate.Op {
				return mutate.Append{Path: p, Value: o.Value}
			})...)

		case mutate.Delete:
			add(i, expandSingle(o.Path, m, logger, func(p state.Path) mutate.Op {
				return mutate.Delete{Path: p}
			})...)

		case mutate.Merge:
			add(i, expandSingle(o.Path, m, logger, func(p state.Path) mutate.Op {
				return mutate.Merge{Path: p, Value: o.Value}
			})...)

		case mutate.RandomChoice:
			add(i, expandSingle(o.Path, m, logger, func(p state.Path) mutate.Op {
				return mutate.RandomChoice{Path: p, Choices: o.Choices}
			})...)

		case mutate.Transfer:
			// Wildcards on either side fan out in lockstep: a wildcard
			// pair addresses the same participant on both sides.
			add(i, expandTransfer(o, m, logger)...)

		case mutate.SetAll:
			if m.Len() == 0 {
				// No bindings in play: leave it for the executor to
				// expand against live state.
				add(i, o)
				break
			}
			for _, id := range m.IDs() {
				p, err := state.ParsePath(state.RootParticipants + "." + id + "." + o.Field)
				if err != nil {
					logger.Warn("setForAllParticipants field does not parse",
						"field", o.Field, "error", err)
					continue
				}
				add(i, mutate.Set{Path: p, Value: o.Value})
			}

		default:
			add(i, op)
		}
	}

	return exp
}

// expandSingle rewrites one path-bearing op: wildcard fans out per bound
// participant, aliases resolve, everything else passes through.
func expandSingle(p state.Path, m Map, logger *slog.Logger, build func(state.Path) mutate.Op) []mutate.Op {
	if p.HasWildcard() {
		out := make([]mutate.Op, 0, m.Len())
		for _, id := range m.IDs() {
			out = append(out, build(p.WithParticipant(id)))
		}
		return out
	}
	return []mutate.Op{build(resolvePath(p, m, logger))}
}

func expandTransfer(o mutate.Transfer, m Map, logger *slog.Logger) []mutate.Op {
	if !o.From.HasWildcard() && !o.To.HasWildcard() {
		return []mutate.Op{mutate.Transfer{
			From:   resolvePath(o.From, m, logger),
			To:     resolvePath(o.To, m, logger),
			Amount: o.Amount,
		}}
	}

	out := make([]mutate.Op, 0, m.Len())
	for _, id := range m.IDs() {
		from, to := o.From, o.To
		if from.HasWildcard() {
			from = from.WithParticipant(id)
		} else {
			from = resolvePath(from, m, logger)
		}
		if to.HasWildcard() {
			to = to.WithParticipant(id)
		} else {
			to = resolvePath(to, m, logger)
		}
		out = append(out, mutate.Transfer{From: from, To: to, Amount: o.Amount})
	}
	return out
}

// resolvePath swaps an alias participant key for its concrete id. Shared
// paths and unbound keys return unchanged; the unbound case is logged
// because it usually means the generation layer invented a participant.
func resolvePath(p state.Path, m Map, logger *slog.Logger) state.Path {
	key, ok := p.ParticipantKey()
	if !ok {
		return p
	}
	id, bound := m.Resolve(key)
	if !bound {
		if _, concrete := m.AliasFor(key); !concrete {
			logger.Warn("unbound participant alias in op path", "alias", key, "path", p.String())
		}
		return p
	}
	return p.WithParticipant(id)
}
