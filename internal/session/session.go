package session

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/math-tennis-backend/internal/difficulty"
	"github.com/DoyleJ11/math-tennis-backend/internal/scoring"
)

const (
	// CodeAlphabet leaves out O/0/I/1/L.
	CodeAlphabet  = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	CodeLength    = 6
	MaxNameLength = 24
)

type Participant struct {
	ConnID         string     `json:"-"`
	Name           string     `json:"name"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}

func (p Participant) Connected() bool { return p.DisconnectedAt == nil }

// Session is a room. Values handed out by the Registry are snapshots;
// mutating them does not touch the registry.
type Session struct {
	Code       string           `json:"code"`
	Host       Participant      `json:"host"`
	Guest      *Participant     `json:"guest,omitempty"`
	Level      difficulty.Level `json:"level,omitempty"`
	InProgress bool             `json:"in_progress"`
	// Roster is bumped whenever a seat changes hands: a join, a leave or a
	// promotion. A reconnect keeps it.
	Roster     uint64           `json:"-"`
}

func (s Session) clone() Session {
	if s.Guest != nil {
		g := *s.Guest
		s.Guest = &g
	}
	return s
}

// SideOf reports which seat connID occupies.
func (s Session) SideOf(connID string) (scoring.Side, bool) {
	switch {
	case connID == "":
		return scoring.SideNone, false
	case s.Host.ConnID == connID:
		return scoring.SideHost, true
	case s.Guest != nil && s.Guest.ConnID == connID:
		return scoring.SideGuest, true
	default:
		return scoring.SideNone, false
	}
}

func (s Session) Seat(side scoring.Side) (Participant, bool) {
	switch side {
	case scoring.SideHost:
		return s.Host, true
	case scoring.SideGuest:
		if s.Guest != nil {
			return *s.Guest, true
		}
	}
	return Participant{}, false
}

// ConnFor is the current connection id for side, or "" when the seat is empty.
func (s Session) ConnFor(side scoring.Side) string {
	p, ok := s.Seat(side)
	if !ok {
		return ""
	}
	return p.ConnID
}

// OtherConn is the connection id of whoever is not connID.
func (s Session) OtherConn(connID string) string {
	side, ok := s.SideOf(connID)
	if !ok {
		return ""
	}
	return s.ConnFor(side.Other())
}

func (s Session) GuestName() string {
	if s.Guest == nil {
		return ""
	}
	return s.Guest.Name
}

// Ready reports whether a match can start.
func (s Session) Ready() bool {
	return s.Guest != nil && s.Level != "" && !s.InProgress
}

func GenerateCode() (string, error) {
	code := make([]byte, CodeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(CodeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = CodeAlphabet[num.Int64()]
	}
	return string(code), nil
}

// NormalizeCode upper-cases and trims a user-typed code and checks its shape.
func NormalizeCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != CodeLength {
		return "", ErrInvalidCode
	}
	for i := 0; i < len(c); i++ {
		if !strings.ContainsRune(CodeAlphabet, rune(c[i])) {
			return "", ErrInvalidCode
		}
	}
	return c, nil
}

func NormalizeName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" || utf8.RuneCountInString(n) > MaxNameLength {
		return "", ErrInvalidName
	}
	return n, nil
}
