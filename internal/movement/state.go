package movement

import (
	"fmt"

	"github.com/favron1/linescout/pkg/models"
)

// legalTransitions is the closed edge set of the watch-state machine.
//
//	watching → active | dropped
//	active → confirmed | dropped
//	confirmed → signal | dropped
//	signal → dropped
//	dropped is terminal
var legalTransitions = map[models.WatchState][]models.WatchState{
	models.WatchStateWatching:  {models.WatchStateActive, models.WatchStateDropped},
	models.WatchStateActive:    {models.WatchStateConfirmed, models.WatchStateDropped},
	models.WatchStateConfirmed: {models.WatchStateSignal, models.WatchStateDropped},
	models.WatchStateSignal:    {models.WatchStateDropped},
	models.WatchStateDropped:   {},
}

// transition is the only place a watch state changes. An illegal edge is a
// programming error and surfaces as an error instead of silently writing
// an impossible state.
func transition(ws *models.EventWatchState, to models.WatchState) error {
	for _, allowed := range legalTransitions[ws.State] {
		if allowed == to {
			ws.State = to
			return nil
		}
	}
	return fmt.Errorf("illegal watch-state transition %s -> %s for event %s", ws.State, to, ws.EventKey)
}
