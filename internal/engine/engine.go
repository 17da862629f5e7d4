package engine

import (
	"errors"

	"github.com/DoyleJ11/math-tennis-backend/internal/difficulty"
	"github.com/DoyleJ11/math-tennis-backend/internal/problem"
	"github.com/DoyleJ11/math-tennis-backend/internal/scoring"
)

var ErrWrongTurn = errors.New("invalid turn")
var ErrWrongPhase = errors.New("command not allowed in this phase")
var ErrMatchOver = errors.New("match already over")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	PhaseBallInFlight   Phase = "ball_in_flight"
	PhaseTimedOut       Phase = "timed_out"
	PhaseBetweenPoints  Phase = "between_points"
	PhaseOver           Phase = "over"
)

type State struct {
	Phase        Phase
	Score        scoring.MatchScore
	Turn         scoring.Side
	Server       scoring.Side
	Rally        int
	Current      problem.Problem
	Pending      *problem.Problem // second half of the pair, if not yet asked
	TimerSeconds int              // timer of the current question
	Winner       scoring.Side
	Base         difficulty.Config
}

type CommandType string

const (
	CmdSubmitAnswer CommandType = "SubmitAnswer"
	CmdTurnExpired  CommandType = "TurnExpired"
	CmdResolvePoint CommandType = "ResolvePoint"
	CmdNextQuestion CommandType = "NextQuestion"
)

/*
	CmdSubmitAnswer (correct)   -> EvtAnswerJudged -> EvtTurnPassed            then NextQuestion after the hit delay
	CmdSubmitAnswer (incorrect) -> EvtAnswerJudged -> EvtPointWon [-> EvtGameWon [-> EvtMatchWon]]
	CmdTurnExpired              -> EvtTurnExpired                            then ResolvePoint after the timeout delay
	CmdResolvePoint             -> EvtPointWon [-> EvtGameWon [-> EvtMatchWon]]
	CmdNextQuestion             -> EvtQuestionIssued
*/

type Command struct {
	Type   CommandType
	Side   scoring.Side // answering side, or the loser for ResolvePoint
	Answer int
}

type EventType string

const (
	EvtMatchStarted   EventType = "MatchStarted"
	EvtAnswerJudged   EventType = "AnswerJudged"
	EvtTurnPassed     EventType = "TurnPassed"
	EvtTurnExpired    EventType = "TurnExpired"
	EvtPointWon       EventType = "PointWon"
	EvtGameWon        EventType = "GameWon"
	EvtMatchWon       EventType = "MatchWon"
	EvtQuestionIssued EventType = "QuestionIssued"
)

type Event struct {
	Type         EventType
	Side         scoring.Side
	Correct      bool
	Question     string
	TimerSeconds int
	Score        scoring.MatchScore
}

// ProblemSource draws a fairness pair for a difficulty config.
type ProblemSource interface {
	Pair(cfg difficulty.Config) (problem.Problem, problem.Problem)
}

// Engine applies match commands. It holds no match state of its own; the
// only inputs besides State and Command are the problem source and the
// match length.
type Engine struct {
	problems   ProblemSource
	gamesToWin int
}

func New(problems ProblemSource, gamesToWin int) *Engine {
	if gamesToWin <= 0 {
		gamesToWin = scoring.DefaultGamesToWin
	}
	return &Engine{problems: problems, gamesToWin: gamesToWin}
}

// Start opens a match at base difficulty: host serves and moves first.
func (e *Engine) Start(base difficulty.Config) ([]Event, State) {
	s := State{
		Phase:  PhaseAwaitingAnswer,
		Turn:   scoring.SideHost,
		Server: scoring.SideHost,
		Base:   base,
	}
	s = e.ask(s)
	return []Event{{
		Type:         EvtMatchStarted,
		Side:         s.Turn,
		Question:     s.Current.Question,
		TimerSeconds: s.TimerSeconds,
		Score:        s.Score,
	}}, s
}

func (e *Engine) Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Phase == PhaseOver {
		return nil, s, ErrMatchOver
	}
	if !accepts(cmd.Type, s.Phase) {
		if _, known := acceptedIn[cmd.Type]; !known {
			return nil, s, ErrUnsupportedCommand
		}
		return nil, s, ErrWrongPhase
	}

	switch cmd.Type {
	case CmdSubmitAnswer:
		if cmd.Side != s.Turn {
			return nil, s, ErrWrongTurn
		}
		correct := cmd.Answer == s.Current.Answer
		events := []Event{{Type: EvtAnswerJudged, Side: cmd.Side, Correct: correct}}

		if !correct {
			more, next := e.resolvePoint(s, cmd.Side)
			return append(events, more...), next, nil
		}

		next := s
		next.Turn = s.Turn.Other()
		next.Rally++
		next.Phase = PhaseBallInFlight
		events = append(events, Event{Type: EvtTurnPassed, Side: next.Turn})
		return events, next, nil

	case CmdTurnExpired:
		next := s
		next.Phase = PhaseTimedOut
		return []Event{{Type: EvtTurnExpired, Side: s.Turn}}, next, nil

	case CmdResolvePoint:
		loser := cmd.Side
		if loser == scoring.SideNone {
			loser = s.Turn
		}
		events, next := e.resolvePoint(s, loser)
		return events, next, nil

	case CmdNextQuestion:
		next := e.ask(s)
		next.Phase = PhaseAwaitingAnswer
		return []Event{{
			Type:         EvtQuestionIssued,
			Side:         next.Turn,
			Question:     next.Current.Question,
			TimerSeconds: next.TimerSeconds,
		}}, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// resolvePoint awards the point to loser's opponent and rolls games and the
// match forward. The rally and any unasked paired problem are discarded.
func (e *Engine) resolvePoint(s State, loser scoring.Side) ([]Event, State) {
	winner := loser.Other()
	next := s
	next.Rally = 0
	next.Pending = nil

	game, gameWon := scoring.ScorePoint(s.Score.Game, winner)
	if !gameWon {
		next.Score.Game = game
		next.Turn = next.Server
		next.Phase = PhaseBetweenPoints
		return []Event{{Type: EvtPointWon, Side: winner, Score: next.Score}}, next
	}

	score, matchWon := scoring.ScoreGame(s.Score, winner, e.gamesToWin)
	next.Score = score
	events := []Event{
		{Type: EvtPointWon, Side: winner, Score: score},
		{Type: EvtGameWon, Side: winner, Score: score},
	}

	if matchWon {
		next.Phase = PhaseOver
		next.Winner = winner
		next.TimerSeconds = 0
		return append(events, Event{Type: EvtMatchWon, Side: winner, Score: score}), next
	}

	next.Server = scoring.ServerFor(score.TotalGames())
	next.Turn = next.Server
	next.Phase = PhaseBetweenPoints
	return events, next
}

// ask makes the next problem current: the unasked half of the last pair when
// there is one, otherwise a fresh pair at the difficulty the match is at now.
func (e *Engine) ask(s State) State {
	cfg := s.Scaled()
	if s.Pending != nil {
		s.Current = *s.Pending
		s.Pending = nil
	} else {
		first, second := e.problems.Pair(cfg)
		s.Current = first
		s.Pending = &second
	}
	s.TimerSeconds = cfg.TimerSeconds
	return s
}
