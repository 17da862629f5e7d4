package difficulty

import "math"

const (
	rallyCap     = 6
	rallyWeight  = 0.4
	leadCap      = 2
	leadWeight   = 0.6
	maxRangeGain = 0.25

	maxTimerReduction = 2.0
	minTimerSeconds   = 3

	maxAIAccuracyBoost = 0.08
	maxAIAccuracy      = 0.98
	maxAIDelayCutMs    = 400.0
	minAIDelayMs       = 300
)

// Context is what the scaler sees of a running match. GamesLead is the
// absolute lead, so both sides always face the same difficulty.
type Context struct {
	RallyCount int
	GamesLead  int
}

type Modifier struct {
	RangeMultiplier  float64 // 1.0 to 1.25
	TimerReduction   float64 // seconds, 0 to 2
	AIAccuracyBoost  float64 // 0 to 0.08
	AIDelayReduction float64 // ms, 0 to 400
}

func Intensity(ctx Context) float64 {
	lead := ctx.GamesLead
	if lead < 0 {
		lead = -lead
	}
	rally := math.Min(float64(ctx.RallyCount)/rallyCap, 1) * rallyWeight
	leadF := math.Min(float64(lead)/leadCap, 1) * leadWeight
	return rally + leadF
}

func ModifierFor(ctx Context) Modifier {
	i := Intensity(ctx)
	return Modifier{
		RangeMultiplier:  1 + i*maxRangeGain,
		TimerReduction:   i * maxTimerReduction,
		AIAccuracyBoost:  i * maxAIAccuracyBoost,
		AIDelayReduction: i * maxAIDelayCutMs,
	}
}

// Apply returns base with m applied. Minimums stay put; only maxima grow.
func (base Config) Apply(m Modifier) Config {
	rm := m.RangeMultiplier
	scale := func(v int) int { return int(math.Round(float64(v) * rm)) }

	out := base
	out.Addition.Max = scale(base.Addition.Max)
	out.Subtraction.Max = scale(base.Subtraction.Max)
	out.Multiplication.Max1 = scale(base.Multiplication.Max1)
	out.Multiplication.Max2 = scale(base.Multiplication.Max2)
	if base.Division != nil {
		d := *base.Division
		d.MaxDivisor = scale(d.MaxDivisor)
		d.MaxAnswer = scale(d.MaxAnswer)
		out.Division = &d
	}
	if base.MultiStep != nil {
		ms := *base.MultiStep
		ms.Operations = append([]string(nil), base.MultiStep.Operations...)
		out.MultiStep = &ms
	}

	out.TimerSeconds = max(minTimerSeconds, int(math.Round(float64(base.TimerSeconds)-m.TimerReduction)))
	out.AIAccuracy = math.Min(maxAIAccuracy, base.AIAccuracy+m.AIAccuracyBoost)
	out.AIDelayMs = max(minAIDelayMs, int(math.Round(float64(base.AIDelayMs)-m.AIDelayReduction)))
	return out
}

// Scale is the one-call form used by the match engine.
func Scale(base Config, ctx Context) Config {
	return base.Apply(ModifierFor(ctx))
}
