package scoring

// Perspective labels a side relative to whoever is looking at it.
type Perspective string

const (
	Player   Perspective = "player"
	Opponent Perspective = "opponent"
)

// Relative labels side as seen by viewer.
func Relative(viewer, side Side) Perspective {
	if viewer == side {
		return Player
	}
	return Opponent
}

type GameView struct {
	Player    Point        `json:"player"`
	Opponent  Point        `json:"opponent"`
	Advantage *Perspective `json:"advantage"`
}

type MatchView struct {
	PlayerGames   int      `json:"playerGames"`
	OpponentGames int      `json:"opponentGames"`
	CurrentGame   GameView `json:"currentGame"`
}

// ViewFor flips the canonical score into viewer's orientation.
func ViewFor(viewer Side, m MatchScore) MatchView {
	v := MatchView{
		PlayerGames:   m.Games(viewer),
		OpponentGames: m.Games(viewer.Other()),
		CurrentGame: GameView{
			Player:   m.Game.points(viewer),
			Opponent: m.Game.points(viewer.Other()),
		},
	}
	if m.Game.Advantage != SideNone {
		p := Relative(viewer, m.Game.Advantage)
		v.CurrentGame.Advantage = &p
	}
	return v
}
