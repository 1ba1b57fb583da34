// Package nfl provides the americanfootball_nfl sport pack.
package nfl

import (
	"github.com/favron1/linescout/internal/matching"
	"github.com/favron1/linescout/sports"
)

// SportKey is the upstream odds API identifier for the league.
const SportKey = "americanfootball_nfl"

// New returns the NFL sport pack.
func New() sports.Pack {
	return &sports.StaticPack{
		Key:      SportKey,
		Teams:    teams,
		AliasMap: aliases,
		Weights:  sourceWeights,
	}
}

var teams = []string{
	"Arizona Cardinals",
	"Atlanta Falcons",
	"Baltimore Ravens",
	"Buffalo Bills",
	"Carolina Panthers",
	"Chicago Bears",
	"Cincinnati Bengals",
	"Cleveland Browns",
	"Dallas Cowboys",
	"Denver Broncos",
	"Detroit Lions",
	"Green Bay Packers",
	"Houston Texans",
	"Indianapolis Colts",
	"Jacksonville Jaguars",
	"Kansas City Chiefs",
	"Las Vegas Raiders",
	"Los Angeles Chargers",
	"Los Angeles Rams",
	"Miami Dolphins",
	"Minnesota Vikings",
	"New England Patriots",
	"New Orleans Saints",
	"New York Giants",
	"New York Jets",
	"Philadelphia Eagles",
	"Pittsburgh Steelers",
	"San Francisco 49ers",
	"Seattle Seahawks",
	"Tampa Bay Buccaneers",
	"Tennessee Titans",
	"Washington Commanders",
}

// Keys are pre-normalized: lowercase, punctuation stripped. The two New
// York and two Los Angeles teams share city tokens, so city-only aliases
// are deliberately absent for them.
var aliases = matching.AliasTable{
	"kc chiefs":     "Kansas City Chiefs",
	"la chargers":   "Los Angeles Chargers",
	"la rams":       "Los Angeles Rams",
	"ny giants":     "New York Giants",
	"ny jets":       "New York Jets",
	"niners":        "San Francisco 49ers",
	"sf 49ers":      "San Francisco 49ers",
	"tampa bay":     "Tampa Bay Buccaneers",
	"bucs":          "Tampa Bay Buccaneers",
	"new england":   "New England Patriots",
	"washington":    "Washington Commanders",
	"football team": "Washington Commanders",
	"jax jaguars":   "Jacksonville Jaguars",
}

var sourceWeights = map[string]float64{
	"pinnacle":     3.0,
	"circa":        2.5,
	"bookmaker_eu": 2.0,
	"betonline":    1.5,
	"lowvig":       1.2,
	"draftkings":   1.0,
	"fanduel":      1.0,
	"betmgm":       0.8,
	"caesars":      0.8,
	"pointsbet":    0.7,
	"bovada":       0.6,
}
