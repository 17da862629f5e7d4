package scoring

// Side is a seat in the room. Scores are always stored host-relative;
// per-participant views are computed at the notification boundary.
type Side string

const (
	SideNone  Side = ""
	SideHost  Side = "host"
	SideGuest Side = "guest"
)

func (s Side) Other() Side {
	switch s {
	case SideHost:
		return SideGuest
	case SideGuest:
		return SideHost
	default:
		return SideNone
	}
}

// Point is a tennis point value: 0, 15, 30 or 40.
type Point int

const (
	Love    Point = 0
	Fifteen Point = 15
	Thirty  Point = 30
	Forty   Point = 40
)

var pointProgression = map[Point]Point{
	Love:    Fifteen,
	Fifteen: Thirty,
	Thirty:  Forty,
}

const (
	DefaultGamesToWin = 3
	MinGameLead       = 2
)

type GameScore struct {
	Host      Point `json:"host"`
	Guest     Point `json:"guest"`
	Advantage Side  `json:"advantage,omitempty"` // only set at deuce
}

type MatchScore struct {
	HostGames  int       `json:"host_games"`
	GuestGames int       `json:"guest_games"`
	Game       GameScore `json:"game"`
}

func (g GameScore) points(s Side) Point {
	if s == SideHost {
		return g.Host
	}
	return g.Guest
}

func (g *GameScore) set(s Side, p Point) {
	if s == SideHost {
		g.Host = p
		return
	}
	g.Guest = p
}

func (g GameScore) Deuce() bool {
	return g.Host == Forty && g.Guest == Forty
}

// ScorePoint awards a point to scorer. It returns the new game score and
// whether scorer has won the game; on a won game the returned score is fresh.
func ScorePoint(g GameScore, scorer Side) (GameScore, bool) {
	other := scorer.Other()

	if g.Deuce() {
		switch g.Advantage {
		case scorer:
			return GameScore{}, true
		case other:
			g.Advantage = SideNone
			return g, false
		default:
			g.Advantage = scorer
			return g, false
		}
	}

	if g.points(scorer) == Forty {
		return GameScore{}, true
	}

	g.set(scorer, pointProgression[g.points(scorer)])
	g.Advantage = SideNone
	return g, false
}

func (m MatchScore) Games(s Side) int {
	if s == SideHost {
		return m.HostGames
	}
	return m.GuestGames
}

func (m MatchScore) TotalGames() int { return m.HostGames + m.GuestGames }

// GamesLead is the absolute game difference, regardless of who leads.
func (m MatchScore) GamesLead() int {
	d := m.HostGames - m.GuestGames
	if d < 0 {
		return -d
	}
	return d
}

// ScoreGame credits a won game to scorer and resets the current game.
// The returned score always includes the new game; the bool reports
// whether that game also won the match.
func ScoreGame(m MatchScore, scorer Side, gamesToWin int) (MatchScore, bool) {
	if gamesToWin <= 0 {
		gamesToWin = DefaultGamesToWin
	}
	if scorer == SideHost {
		m.HostGames++
	} else {
		m.GuestGames++
	}
	m.Game = GameScore{}

	won := m.Games(scorer) >= gamesToWin && m.Games(scorer)-m.Games(scorer.Other()) >= MinGameLead
	return m, won
}

// ServerFor reports who serves after totalGames completed games.
// Host serves game 0 and every even game after it.
func ServerFor(totalGames int) Side {
	if totalGames%2 == 0 {
		return SideHost
	}
	return SideGuest
}
