package silence

import "time"

// Choice is the user's answer to a "still recording?" prompt.
type Choice int

const (
	Continue Choice = iota
	Stop
)

func (c Choice) String() string {
	if c == Stop {
		return "stop"
	}
	return "continue"
}

// Monitor accumulates live power readings taken every poll interval and
// decides when to ask whether a silent recording should be stopped. It is not
// safe for concurrent use; the session loop owns it.
type Monitor struct {
	thresholdDB  float64
	pollInterval time.Duration
	promptAfter  time.Duration

	continuousSilence time.Duration
	hasPrompted       bool
	promptVisible     bool
}

func NewMonitor(thresholdDB float64, pollInterval, promptAfter time.Duration) *Monitor {
	return &Monitor{
		thresholdDB:  thresholdDB,
		pollInterval: pollInterval,
		promptAfter:  promptAfter,
	}
}

// Observe records one average-power sample (dBFS). It returns true exactly
// when a confirmation prompt should be raised.
func (m *Monitor) Observe(averagePower float64) bool {
	if averagePower <= m.thresholdDB {
		m.continuousSilence += m.pollInterval
	} else {
		m.continuousSilence = 0
		m.hasPrompted = false
	}

	if m.continuousSilence >= m.promptAfter && !m.hasPrompted && !m.promptVisible {
		m.hasPrompted = true
		m.promptVisible = true
		return true
	}
	return false
}

// Resolve applies the prompt answer.
func (m *Monitor) Resolve(choice Choice) {
	m.promptVisible = false
	if choice == Continue {
		m.continuousSilence = 0
		m.hasPrompted = false
	}
}

func (m *Monitor) Reset() {
	m.continuousSilence = 0
	m.hasPrompted = false
	m.promptVisible = false
}

func (m *Monitor) ContinuousSilence() time.Duration { return m.continuousSilence }

func (m *Monitor) HasPrompted() bool { return m.hasPrompted }

func (m *Monitor) PromptVisible() bool { return m.promptVisible }

func (m *Monitor) PollInterval() time.Duration { return m.pollInterval }
