// Package nba provides the basketball_nba sport pack.
package nba

import (
	"github.com/favron1/linescout/internal/matching"
	"github.com/favron1/linescout/sports"
)

// SportKey is the upstream odds API identifier for the league.
const SportKey = "basketball_nba"

// New returns the NBA sport pack.
func New() sports.Pack {
	return &sports.StaticPack{
		Key:      SportKey,
		Teams:    teams,
		AliasMap: aliases,
		Weights:  sourceWeights,
	}
}

var teams = []string{
	"Atlanta Hawks",
	"Boston Celtics",
	"Brooklyn Nets",
	"Charlotte Hornets",
	"Chicago Bulls",
	"Cleveland Cavaliers",
	"Dallas Mavericks",
	"Denver Nuggets",
	"Detroit Pistons",
	"Golden State Warriors",
	"Houston Rockets",
	"Indiana Pacers",
	"Los Angeles Clippers",
	"Los Angeles Lakers",
	"Memphis Grizzlies",
	"Miami Heat",
	"Milwaukee Bucks",
	"Minnesota Timberwolves",
	"New Orleans Pelicans",
	"New York Knicks",
	"Oklahoma City Thunder",
	"Orlando Magic",
	"Philadelphia 76ers",
	"Phoenix Suns",
	"Portland Trail Blazers",
	"Sacramento Kings",
	"San Antonio Spurs",
	"Toronto Raptors",
	"Utah Jazz",
	"Washington Wizards",
}

// Keys are pre-normalized: lowercase, punctuation stripped.
var aliases = matching.AliasTable{
	"la clippers":      "Los Angeles Clippers",
	"la lakers":        "Los Angeles Lakers",
	"ny knicks":        "New York Knicks",
	"okc thunder":      "Oklahoma City Thunder",
	"philadelphia":     "Philadelphia 76ers",
	"phila 76ers":      "Philadelphia 76ers",
	"sixers":           "Philadelphia 76ers",
	"portland blazers": "Portland Trail Blazers",
	"gs warriors":      "Golden State Warriors",
	"golden st":        "Golden State Warriors",
	"new orleans":      "New Orleans Pelicans",
	"san antonio":      "San Antonio Spurs",
	"wolves":           "Minnesota Timberwolves",
}

// sourceWeights ranks bookmakers by how much their prices lead the market.
// Anything at 2.0 or above is treated as a sharp reference book.
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
