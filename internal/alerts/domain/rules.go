package alerts

import (
	"math"
	"time"
)

// Outcome is the result of evaluating one rule against one sample.
// TriggerValue carries the raw signal value for severity scoring.
type Outcome struct {
	Fired        bool
	Type         AlertType
	TriggerValue float64
	Metadata     map[string]any
}

// EvaluateEmptyClass applies the empty classroom rule to an occupancy
// sample. A zero count opens (or extends) the empty window; once the
// window reaches the configured duration the rule fires and the window
// is cleared, so a continuously empty room does not fire again until a
// fresh window elapses. Any positive count closes the window.
func EvaluateEmptyClass(st *RoomRuleState, count int, cfg RuleConfig, now time.Time) Outcome {
	if count > 0 {
		st.EmptyWindowStart = time.Time{}
		return Outcome{}
	}
	if st.EmptyWindowStart.IsZero() {
		st.EmptyWindowStart = now
		return Outcome{}
	}
	elapsed := now.Sub(st.EmptyWindowStart)
	if elapsed < cfg.EmptyClassDuration.Std() {
		return Outcome{}
	}
	st.EmptyWindowStart = time.Time{}
	return Outcome{
		Fired:        true,
		Type:         TypeEmptyClass,
		TriggerValue: elapsed.Seconds(),
		Metadata: map[string]any{
			"empty_duration_sec": int(math.Round(elapsed.Seconds())),
		},
	}
}

// EvaluateMischief applies the mischief rule to a motion score. While
// the cooldown from the last firing is active the sample is dropped
// without touching the streak. Otherwise a score strictly above the
// threshold advances the streak and the rule fires when the streak
// reaches the configured count; a score at or below the threshold
// resets the streak.
func EvaluateMischief(st *RoomRuleState, score float64, cfg RuleConfig, now time.Time) Outcome {
	if inCooldown(st.LastMischiefFiredAt, cfg.MischiefCooldown.Std(), now) {
		return Outcome{}
	}
	if score <= cfg.MotionThreshold {
		st.MotionStreak = 0
		return Outcome{}
	}
	st.MotionStreak++
	if st.MotionStreak < cfg.MischiefStreak {
		return Outcome{}
	}
	st.MotionStreak = 0
	st.LastMischiefFiredAt = now
	return Outcome{
		Fired:        true,
		Type:         TypeMischief,
		TriggerValue: score,
		Metadata: map[string]any{
			"motion_score": round3(score),
		},
	}
}

// EvaluateLoudNoise applies the loud noise rule to an audio level. It
// has the same streak-and-cooldown shape as the mischief rule.
func EvaluateLoudNoise(st *RoomRuleState, level float64, cfg RuleConfig, now time.Time) Outcome {
	if inCooldown(st.LastLoudNoiseFiredAt, cfg.LoudNoiseCooldown.Std(), now) {
		return Outcome{}
	}
	if level <= cfg.AudioThreshold {
		st.AudioStreak = 0
		return Outcome{}
	}
	st.AudioStreak++
	if st.AudioStreak < cfg.LoudNoiseStreak {
		return Outcome{}
	}
	st.AudioStreak = 0
	st.LastLoudNoiseFiredAt = now
	return Outcome{
		Fired:        true,
		Type:         TypeLoudNoise,
		TriggerValue: level,
		Metadata: map[string]any{
			"audio_level": round3(level),
		},
	}
}

// EvaluateMissingTeacher applies the missing teacher rule to a
// presence sample. The rule fires whenever the room holds at least one
// person with no teacher present, rate limited only by its cooldown.
func EvaluateMissingTeacher(st *RoomRuleState, occupancy int, teacherPresent bool, cfg RuleConfig, now time.Time) Outcome {
	if occupancy < 1 || teacherPresent {
		return Outcome{}
	}
	if inCooldown(st.LastMissingTeacherFiredAt, cfg.MissingTeacherCooldown.Std(), now) {
		return Outcome{}
	}
	st.LastMissingTeacherFiredAt = now
	return Outcome{
		Fired:        true,
		Type:         TypeMissingTeacher,
		TriggerValue: float64(occupancy),
		Metadata: map[string]any{
			"occupancy": occupancy,
		},
	}
}

func inCooldown(lastFired time.Time, cooldown time.Duration, now time.Time) bool {
	return !lastFired.IsZero() && now.Sub(lastFired) < cooldown
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
