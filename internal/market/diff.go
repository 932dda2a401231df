package market

import "github.com/rickgao/inplay-odds/internal/model"

// diffRunner compares the ladders present in update against old. Ladders
// omitted from the update are not compared.
func diffRunner(runnerKey string, old, update model.Runner) []PriceMove {
	var moves []PriceMove
	if update.Back != nil {
		moves = appendLadderMoves(moves, runnerKey, update.ID, model.SideBack, old.Back, update.Back)
	}
	if update.Lay != nil {
		moves = appendLadderMoves(moves, runnerKey, update.ID, model.SideLay, old.Lay, update.Lay)
	}
	return moves
}

// appendLadderMoves records a move for every position present in both
// ladders whose odds differ. Positions new to the ladder are not moves.
func appendLadderMoves(moves []PriceMove, runnerKey string, runnerID model.ID, side model.Side, old, next []model.PriceLevel) []PriceMove {
	for i, level := range next {
		if i >= len(old) {
			break
		}
		prev := old[i]
		if level.Odds.Equal(prev.Odds) {
			continue
		}

		dir := model.Down
		if level.Odds.GreaterThan(prev.Odds) {
			dir = model.Up
		}
		moves = append(moves, PriceMove{
			Key:       model.FieldKey(runnerKey, side, i),
			RunnerKey: runnerKey,
			RunnerID:  runnerID,
			Side:      side,
			Index:     i,
			Direction: dir,
			OldOdds:   prev.Odds,
			NewOdds:   level.Odds,
		})
	}
	return moves
}
