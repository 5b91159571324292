// Package usage classifies LLM subscription utilization into a discrete
// advisory level. Utilization comes from one of two sources: figures pushed
// by an external daemon into the state file, or credits recomputed from the
// local session logs on each invocation.
package usage

import (
	"time"
)

// StateKey is the store document name for the advisor.
const StateKey = "usage.json"

// Level is the advisory output, in ascending severity. Stale and unknown
// pre-empt the utilization-based levels.
type Level string

const (
	LevelAvailable Level = "available"
	LevelModerate  Level = "moderate"
	LevelConserve  Level = "conserve"
	LevelCritical  Level = "critical"
	LevelStale     Level = "stale"
	LevelUnknown   Level = "unknown"
)

// Advice is the human-readable recommendation for the level.
func (l Level) Advice() string {
	switch l {
	case LevelAvailable:
		return "Capacity available. Exploration and autonomous work are fine."
	case LevelModerate:
		return "Light exploration OK. Avoid expensive operations."
	case LevelConserve:
		return "Limit exploration. Prioritize user requests over autonomous actions."
	case LevelCritical:
		return "Avoid non-essential work. Focus on completing current task only."
	case LevelStale:
		return "Usage data is stale and cannot be trusted. Treat capacity as unknown."
	default:
		return "No usage data available."
	}
}

// ExitCode implements the should-explore contract: 0 proceed, 1 proceed
// cautiously, 2 do not proceed. External callers branch on these exactly.
func (l Level) ExitCode() int {
	switch l {
	case LevelAvailable, LevelModerate:
		return 0
	case LevelConserve:
		return 1
	default:
		return 2
	}
}

// Answer is the one-word stdout reply for should-explore.
func (l Level) Answer() string {
	switch l.ExitCode() {
	case 0:
		return "yes"
	case 1:
		return "maybe"
	default:
		return "no"
	}
}

// Per-window thresholds: first/second/third severity steps.
var (
	fiveHourThresholds = [3]float64{50, 70, 90}
	sevenDayThresholds = [3]float64{60, 80, 95}
)

// Classify maps the two window utilization percentages to a level. The
// overall level is the more severe of the two window evaluations.
func Classify(fiveHourPct, sevenDayPct float64) Level {
	switch {
	case fiveHourPct >= fiveHourThresholds[2] || sevenDayPct >= sevenDayThresholds[2]:
		return LevelCritical
	case fiveHourPct >= fiveHourThresholds[1] || sevenDayPct >= sevenDayThresholds[1]:
		return LevelConserve
	case fiveHourPct >= fiveHourThresholds[0] || sevenDayPct >= sevenDayThresholds[0]:
		return LevelModerate
	default:
		return LevelAvailable
	}
}

// FreshnessCeiling is how old daemon-pushed figures may be before they are
// considered untrustworthy.
const FreshnessCeiling = time.Hour

// DefaultPlan matches the subscription tier most agents run on.
const DefaultPlan = "max5x"

// PlanLimits are credits per rolling window.
type PlanLimits struct {
	FiveHour float64
	SevenDay float64
}

// Plans maps plan names to their quota tables.
var Plans = map[string]PlanLimits{
	"pro":    {FiveHour: 550_000, SevenDay: 5_000_000},
	"max5x":  {FiveHour: 3_300_000, SevenDay: 41_666_700},
	"max20x": {FiveHour: 11_000_000, SevenDay: 83_333_300},
}

// LimitsFor returns the quota table for a plan, falling back to pro for
// unrecognized names.
func LimitsFor(plan string) PlanLimits {
	if limits, ok := Plans[plan]; ok {
		return limits
	}
	return Plans["pro"]
}

// Window is one rolling-window utilization figure.
type Window struct {
	Used     float64    `json:"used"`
	Limit    float64    `json:"limit"`
	Pct      float64    `json:"pct"`
	ResetsAt *time.Time `json:"resets_at,omitempty"`
}

// State is the persisted advisor record. FiveHour/SevenDay are only set by
// the daemon-fed path; the self-computed path derives figures fresh each
// invocation and never persists them.
type State struct {
	Plan      string     `json:"plan"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	FiveHour  *Window    `json:"five_hour,omitempty"`
	SevenDay  *Window    `json:"seven_day,omitempty"`
}

// NewState creates a state on the default plan with no usage data.
func NewState() *State {
	return &State{Plan: DefaultPlan}
}

// PlanOrDefault returns the configured plan name, defaulting when unset.
func (s *State) PlanOrDefault() string {
	if s.Plan == "" {
		return DefaultPlan
	}
	return s.Plan
}

// Source identifies where an evaluation's figures came from.
type Source string

const (
	SourceDaemon   Source = "daemon"
	SourceSessions Source = "sessions"
	SourceNone     Source = "none"
)

// Evaluation is the full advisor output.
type Evaluation struct {
	Level     Level          `json:"level"`
	Advice    string         `json:"advice"`
	Plan      string         `json:"plan"`
	Source    Source         `json:"source"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
	FiveHour  Window         `json:"five_hour"`
	SevenDay  Window         `json:"seven_day"`
	Detail    *SessionDetail `json:"detail,omitempty"`
}

// Evaluate classifies current utilization. Daemon-pushed figures in the
// state take precedence and are subject to the freshness ceiling; otherwise
// figures are derived from the session scan. With neither, the level is
// unknown.
func Evaluate(state *State, sessions *SessionUsage, now time.Time) Evaluation {
	plan := state.PlanOrDefault()
	limits := LimitsFor(plan)

	eval := Evaluation{Plan: plan, UpdatedAt: state.UpdatedAt}

	switch {
	case state.FiveHour != nil || state.SevenDay != nil:
		eval.Source = SourceDaemon
		if state.FiveHour != nil {
			eval.FiveHour = *state.FiveHour
		}
		if state.SevenDay != nil {
			eval.SevenDay = *state.SevenDay
		}
		if state.UpdatedAt == nil || now.Sub(*state.UpdatedAt) > FreshnessCeiling {
			eval.Level = LevelStale
		} else {
			eval.Level = Classify(eval.FiveHour.Pct, eval.SevenDay.Pct)
		}

	case sessions != nil && sessions.Messages7d > 0:
		eval.Source = SourceSessions
		eval.FiveHour = Window{
			Used:  float64(sessions.Credits5h),
			Limit: limits.FiveHour,
			Pct:   clampPct(float64(sessions.Credits5h) / limits.FiveHour * 100),
		}
		eval.SevenDay = Window{
			Used:  float64(sessions.Credits7d),
			Limit: limits.SevenDay,
			Pct:   clampPct(float64(sessions.Credits7d) / limits.SevenDay * 100),
		}
		eval.Level = Classify(eval.FiveHour.Pct, eval.SevenDay.Pct)
		detail := sessions.Detail()
		eval.Detail = &detail

	default:
		eval.Source = SourceNone
		eval.Level = LevelUnknown
	}

	eval.Advice = eval.Level.Advice()
	return eval
}

func clampPct(pct float64) float64 {
	if pct > 100 {
		return 100
	}
	return pct
}
